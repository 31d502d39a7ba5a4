package kubeexec

import (
	"context"
	"fmt"
	"io"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	corev1client "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

// Compile-time check that the SPDY implementation satisfies Executor.
var _ Executor = (*SPDYExecutor)(nil)

// Streams carries the standard streams for one exec invocation. A nil Stdin
// runs the command without an input stream; Stdout and Stderr may be nil to
// discard output.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs a command inside a container of a running workload. A
// non-nil error means either the transport failed or the command exited
// non-zero; callers that care about command output capture it through
// Streams and inspect it on failure.
type Executor interface {
	Stream(ctx context.Context, pod, container string, command []string, streams Streams) error
}

// SPDYExecutor executes commands through the control plane's exec
// subresource over SPDY. One executor serves a single namespace; it is
// constructed once at startup and shared by all components (no ambient
// global client).
type SPDYExecutor struct {
	config    *rest.Config
	client    rest.Interface
	namespace string
}

// NewSPDY builds an executor for the given namespace from a rest config.
func NewSPDY(config *rest.Config, namespace string) (*SPDYExecutor, error) {
	client, err := corev1client.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("build core client for exec: %w", err)
	}
	return &SPDYExecutor{
		config:    rest.CopyConfig(config),
		client:    client.RESTClient(),
		namespace: namespace,
	}, nil
}

// Stream implements Executor. The command runs without a TTY; the call
// blocks until the command exits, the streams close, or ctx is canceled.
func (e *SPDYExecutor) Stream(ctx context.Context, pod, container string, command []string, streams Streams) error {
	req := e.client.Post().
		Resource("pods").
		Namespace(e.namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     streams.Stdin != nil,
			Stdout:    streams.Stdout != nil,
			Stderr:    streams.Stderr != nil,
			TTY:       false,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(e.config, http.MethodPost, req.URL())
	if err != nil {
		return fmt.Errorf("build exec transport for %s: %w", pod, err)
	}
	if err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  streams.Stdin,
		Stdout: streams.Stdout,
		Stderr: streams.Stderr,
	}); err != nil {
		return fmt.Errorf("exec in %s: %w", pod, err)
	}
	return nil
}
