package ingest

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/csufpsudocromis/bretter-labs/internal/core"
	"github.com/csufpsudocromis/bretter-labs/internal/fault"
	"github.com/csufpsudocromis/bretter-labs/internal/kubeexec"
)

// Sentinel errors for the distinct ways an ingest can fail. Wrapped with
// context by the returning call; test with errors.Is.
const (
	ErrHelperNotReady   = fault.Error("ingest helper not ready")
	ErrTransferFailed   = fault.Error("image transfer failed")
	ErrValidationFailed = fault.Error("image validation failed")
	ErrConversionFailed = fault.Error("image conversion failed")
)

// imageMountPath is where helpers mount the shared image volume.
const imageMountPath = "/images"

const (
	helperContainerName = "sync"
	helperVolumeName    = "images"
)

// destNamePattern constrains destination filenames to characters that are
// safe to splice into the helper's shell commands.
var destNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config holds configuration for an Ingestor.
type Config struct {
	// Namespace is where helper workloads run. Normally the orchestrator's
	// workload namespace, so helpers share the image volume with VMs.
	Namespace string

	// ImagePVC is the claim name of the shared image volume.
	ImagePVC string

	// HelperImage runs the transfer helper. Anything with a POSIX shell and
	// dd works.
	HelperImage string

	// ToolImage runs validation and conversion helpers; it must carry
	// qemu-img. Normally the VM runner image.
	ToolImage string

	// ChunkSize is the transfer chunk size in bytes. Must be a positive
	// multiple of 1 MiB so chunk offsets stay block-aligned.
	ChunkSize int64

	// ChunkAttempts is how many times a single chunk is attempted before the
	// transfer fails.
	ChunkAttempts int

	// ReadyTimeout bounds how long to wait for a helper to become ready.
	ReadyTimeout time.Duration
}

// Validate checks all Config invariants, reporting every violation.
func (c Config) Validate() error {
	var errs []error

	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace must not be empty"))
	}
	if c.ImagePVC == "" {
		errs = append(errs, errors.New("image PVC claim name must not be empty"))
	}
	if c.HelperImage == "" {
		errs = append(errs, errors.New("helper image must not be empty"))
	}
	if c.ToolImage == "" {
		errs = append(errs, errors.New("tool image must not be empty"))
	}
	if c.ChunkSize <= 0 || c.ChunkSize%(1<<20) != 0 {
		errs = append(errs, fmt.Errorf("chunk size must be a positive multiple of 1 MiB, got %d", c.ChunkSize))
	}
	if c.ChunkAttempts < 1 {
		errs = append(errs, fmt.Errorf("chunk attempts must be at least 1, got %d", c.ChunkAttempts))
	}
	if c.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ready timeout must be greater than 0, got %s", c.ReadyTimeout))
	}

	return errors.Join(errs...)
}

// Ingestor transfers disk images onto the shared image volume. Safe for
// concurrent use; concurrent ingests of the same source file serialize on
// the staging lock.
type Ingestor struct {
	client kubernetes.Interface
	exec   kubeexec.Executor
	cfg    Config
	log    *slog.Logger
}

// New creates an Ingestor. Panics if a collaborator is nil or the config
// fails validation.
func New(client kubernetes.Interface, exec kubeexec.Executor, cfg Config) *Ingestor {
	if client == nil {
		panic("bretterlabs: ingestor client must not be nil")
	}
	if exec == nil {
		panic("bretterlabs: ingestor executor must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("bretterlabs: invalid ingest config: %v", err))
	}
	return &Ingestor{
		client: client,
		exec:   exec,
		cfg:    cfg,
		log:    core.Logger().With("component", "ingest"),
	}
}

// Result reports what an ingest produced: the final on-volume filename
// (which differs from the requested one after raw conversion) and the
// recomputed integrity attributes for the image record.
type Result struct {
	Filename  string
	Checksum  string
	SizeBytes int64
}

// IngestFile transfers the staged file at srcPath to destName on the image
// volume, validates it, and optionally converts it to raw format. The
// source file on disk is never modified; the on-volume source of a
// conversion is deleted only after the conversion succeeds.
//
// A validation or conversion failure leaves no usable destination behind
// and returns an error wrapping the matching sentinel; the caller must not
// create an image record in that case.
func (g *Ingestor) IngestFile(ctx context.Context, srcPath, destName string, convertToRaw bool) (Result, error) {
	if !destNamePattern.MatchString(destName) {
		return Result{}, fmt.Errorf("destination name %q is not a plain filename", destName)
	}

	release, err := acquireStagingLock(ctx, srcPath)
	if err != nil {
		return Result{}, err
	}
	defer release()

	src, err := os.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("open staged image: %w", err)
	}
	defer src.Close()

	helper, err := g.spawnHelper(ctx, "image-sync", g.cfg.HelperImage)
	if err != nil {
		return Result{}, err
	}
	defer g.teardownHelper(helper)

	if err := g.transfer(ctx, helper, src, destName); err != nil {
		return Result{}, err
	}

	// Validation and conversion need the runtime's image tooling, which the
	// transfer helper does not carry.
	tool, err := g.spawnHelper(ctx, "image-tool", g.cfg.ToolImage)
	if err != nil {
		return Result{}, err
	}
	defer g.teardownHelper(tool)

	finalName := destName
	if err := g.validate(ctx, tool, destName); err != nil {
		return Result{}, err
	}
	if convertToRaw {
		finalName, err = g.convertToRaw(ctx, tool, destName)
		if err != nil {
			return Result{}, err
		}
	}

	checksum, size, err := g.measure(ctx, helper, finalName)
	if err != nil {
		return Result{}, err
	}
	g.log.Info("image ingested", "file", finalName, "bytes", size)
	return Result{Filename: finalName, Checksum: checksum, SizeBytes: size}, nil
}

// transfer truncates the destination once, then streams the source in
// fixed-size chunks written at absolute offsets. Because every chunk lands
// at its own offset with no truncation, a failed chunk is simply re-sent.
func (g *Ingestor) transfer(ctx context.Context, helper string, src io.Reader, destName string) error {
	if err := g.shell(ctx, helper, fmt.Sprintf(":> %s/%s", imageMountPath, destName), nil); err != nil {
		return fmt.Errorf("truncate destination %s: %w", destName, errors.Join(ErrTransferFailed, err))
	}

	buf := make([]byte, g.cfg.ChunkSize)
	var offset int64
	for {
		n, readErr := io.ReadFull(src, buf)
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("read staged image at offset %d: %w", offset, readErr)
		}
		if err := g.writeChunk(ctx, helper, destName, offset, buf[:n]); err != nil {
			return err
		}
		offset += int64(n)
		if readErr == io.ErrUnexpectedEOF {
			return nil
		}
	}
}

// writeChunk sends one chunk, retrying on failure. The offset is a multiple
// of the chunk size and therefore of 1 MiB, so it converts exactly to dd's
// seek unit.
func (g *Ingestor) writeChunk(ctx context.Context, helper, destName string, offset int64, chunk []byte) error {
	cmd := fmt.Sprintf("dd of=%s/%s bs=1M seek=%d conv=notrunc status=none",
		imageMountPath, destName, offset/(1<<20))

	var lastErr error
	for attempt := 1; attempt <= g.cfg.ChunkAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = g.shell(ctx, helper, cmd, bytes.NewReader(chunk))
		if lastErr == nil {
			return nil
		}
		g.log.Warn("chunk write failed",
			"file", destName, "offset", offset, "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("write chunk at offset %d after %d attempts: %w",
		offset, g.cfg.ChunkAttempts, errors.Join(ErrTransferFailed, lastErr))
}

// shell runs one shell command in a helper, with optional stdin.
func (g *Ingestor) shell(ctx context.Context, helper, command string, stdin io.Reader) error {
	return g.exec.Stream(ctx, helper, helperContainerName,
		[]string{"/bin/sh", "-c", command}, kubeexec.Streams{Stdin: stdin})
}

// shellOutput runs one shell command in a helper and returns its stdout.
func (g *Ingestor) shellOutput(ctx context.Context, helper, command string) (string, error) {
	var out bytes.Buffer
	err := g.exec.Stream(ctx, helper, helperContainerName,
		[]string{"/bin/sh", "-c", command}, kubeexec.Streams{Stdout: &out, Stderr: &out})
	return out.String(), err
}

// spawnHelper creates a sleeping helper workload mounting the image volume
// read-write and waits for it to become ready. Returns the helper's name.
func (g *Ingestor) spawnHelper(ctx context.Context, prefix, image string) (string, error) {
	name := fmt.Sprintf("%s-%s", prefix, randomSuffix())
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: g.cfg.Namespace,
			Labels:    map[string]string{"app": "image-helper"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    helperContainerName,
				Image:   image,
				Command: []string{"/bin/sh", "-c", "sleep 3600"},
				VolumeMounts: []corev1.VolumeMount{{
					Name:      helperVolumeName,
					MountPath: imageMountPath,
				}},
			}},
			Volumes: []corev1.Volume{{
				Name: helperVolumeName,
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: g.cfg.ImagePVC,
					},
				},
			}},
		},
	}
	if _, err := g.client.CoreV1().Pods(g.cfg.Namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("create helper %s: %w", name, err)
	}
	if err := g.awaitReady(ctx, name); err != nil {
		g.teardownHelper(name)
		return "", err
	}
	return name, nil
}

// awaitReady polls until the helper is running. A helper that lands in a
// failed or unknown phase will never run, so those fail immediately rather
// than burning the timeout.
func (g *Ingestor) awaitReady(ctx context.Context, name string) error {
	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, g.cfg.ReadyTimeout, true,
		func(ctx context.Context) (bool, error) {
			pod, err := g.client.CoreV1().Pods(g.cfg.Namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				if apierrors.IsNotFound(err) {
					return false, nil
				}
				return false, err
			}
			switch pod.Status.Phase {
			case corev1.PodRunning:
				return true, nil
			case corev1.PodFailed, corev1.PodUnknown:
				return false, fmt.Errorf("helper entered phase %s", pod.Status.Phase)
			default:
				return false, nil
			}
		})
	if err != nil {
		return fmt.Errorf("helper %s: %w", name, errors.Join(ErrHelperNotReady, err))
	}
	return nil
}

// teardownHelper force-removes a helper. Best-effort: the helper's sleep
// expires on its own if this fails, and a Never restart policy keeps it
// from coming back.
func (g *Ingestor) teardownHelper(name string) {
	// Fresh context: teardown must run even when the ingest's ctx is the
	// reason we are cleaning up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	zero := int64(0)
	err := g.client.CoreV1().Pods(g.cfg.Namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &zero,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		g.log.Warn("tear down helper", "helper", name, "error", err)
	}
}

// randomSuffix returns 8 hex characters for helper names.
func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("bretterlabs: read random suffix: %v", err))
	}
	return hex.EncodeToString(b)
}
