package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// validate runs the image tool's consistency check against a transferred
// image. Formats without check support (raw, vhd) report "does not support
// checks" and pass; any other failure means the transferred bytes do not
// form a usable image and the ingest must not be recorded.
func (g *Ingestor) validate(ctx context.Context, tool, name string) error {
	out, err := g.shellOutput(ctx, tool,
		fmt.Sprintf("qemu-img check %s/%s 2>&1", imageMountPath, name))
	if err == nil {
		return nil
	}
	if strings.Contains(out, "does not support checks") {
		return nil
	}
	return fmt.Errorf("check image %s: %s: %w", name, strings.TrimSpace(out),
		errors.Join(ErrValidationFailed, err))
}

// measure recomputes an image's checksum and byte size in-place on the
// volume, so the recorded attributes describe what was actually stored
// rather than what was staged.
func (g *Ingestor) measure(ctx context.Context, helper, name string) (string, int64, error) {
	out, err := g.shellOutput(ctx, helper,
		fmt.Sprintf("sha256sum %s/%s", imageMountPath, name))
	if err != nil {
		return "", 0, fmt.Errorf("checksum image %s: %w", name, err)
	}
	checksum, _, ok := strings.Cut(strings.TrimSpace(out), " ")
	if !ok || len(checksum) != 64 {
		return "", 0, fmt.Errorf("checksum image %s: unexpected output %q", name, strings.TrimSpace(out))
	}

	out, err = g.shellOutput(ctx, helper,
		fmt.Sprintf("wc -c < %s/%s", imageMountPath, name))
	if err != nil {
		return "", 0, fmt.Errorf("size image %s: %w", name, err)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("size image %s: unexpected output %q", name, strings.TrimSpace(out))
	}
	return checksum, size, nil
}
