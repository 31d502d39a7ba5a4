package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// convertToRaw converts a transferred image to raw format under a new
// filename and returns that name. The source stays on the volume until the
// conversion has succeeded, so a failed or interrupted conversion loses
// nothing; partial output is removed. Source removal after success is
// best-effort.
func (g *Ingestor) convertToRaw(ctx context.Context, tool, name string) (string, error) {
	rawName := strings.TrimSuffix(name, path.Ext(name)) + ".raw"
	if rawName == name {
		return name, nil
	}

	cmd := fmt.Sprintf("qemu-img convert -O raw %s/%s %s/%s && sync",
		imageMountPath, name, imageMountPath, rawName)
	if out, err := g.shellOutput(ctx, tool, cmd+" 2>&1"); err != nil {
		if rmErr := g.shell(ctx, tool, fmt.Sprintf("rm -f %s/%s", imageMountPath, rawName), nil); rmErr != nil {
			g.log.Warn("remove partial conversion output", "file", rawName, "error", rmErr)
		}
		return "", fmt.Errorf("convert image %s: %s: %w", name, strings.TrimSpace(out),
			errors.Join(ErrConversionFailed, err))
	}

	if err := g.shell(ctx, tool, fmt.Sprintf("rm -f %s/%s", imageMountPath, name), nil); err != nil {
		g.log.Warn("remove conversion source", "file", name, "error", err)
	}
	g.log.Info("image converted to raw", "source", name, "raw", rawName)
	return rawName, nil
}
