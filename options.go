package bretterlabs

import (
	"fmt"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | int64 | int32 | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("bretterlabs: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("bretterlabs: %s must not be empty", name))
	}
}

// Option configures a Manager during construction via NewManager.
// Each With* function returns an Option that sets a specific field.
//
// Several With* functions panic on invalid input (empty names, non-positive
// durations). These panics are intentional: option values are typically
// compile-time constants, so an invalid value indicates a programmer error
// rather than a runtime condition. The pattern mirrors [regexp.MustCompile]:
// fail fast during initialization instead of returning errors that would be
// universally fatal anyway.
type Option func(*managerConfig)

// WithNamespace sets the cluster namespace lab workloads run in. The
// namespace is created on first use if absent.
// Panics if namespace is empty.
func WithNamespace(namespace string) Option {
	requireNonEmpty("namespace", namespace)
	return func(c *managerConfig) {
		c.core.Namespace = namespace
	}
}

// WithRunnerImage sets the container image that boots VM workloads. The
// same image provides qemu-img for ingestion validation and conversion.
// Panics if image is empty.
func WithRunnerImage(image string) Option {
	requireNonEmpty("runner image", image)
	return func(c *managerConfig) {
		c.core.RunnerImage = image
	}
}

// WithImagePVC sets the claim name of the shared disk-image volume.
// Panics if claim is empty.
func WithImagePVC(claim string) Option {
	requireNonEmpty("image PVC claim name", claim)
	return func(c *managerConfig) {
		c.core.ImagePVC = claim
	}
}

// WithExternalHost sets the externally reachable host templated into
// console URLs. There is no usable default; NewManager fails without it.
// Panics if host is empty.
func WithExternalHost(host string) Option {
	requireNonEmpty("external host", host)
	return func(c *managerConfig) {
		c.core.ExternalHost = host
	}
}

// WithEmbedConfigMap names a ConfigMap carrying the slim console embed
// page. When set, the page is mounted into workloads and console URLs point
// at it instead of the stock auto-connect page.
// Panics if name is empty; omit the option to disable the mount.
func WithEmbedConfigMap(name string) Option {
	requireNonEmpty("embed ConfigMap name", name)
	return func(c *managerConfig) {
		c.core.EmbedConfigMap = name
	}
}

// WithConsolePort sets the fixed in-workload console port.
//
// Default: 6080.
//
// Panics if port <= 0.
func WithConsolePort(port int32) Option {
	requirePositive("console port", port)
	return func(c *managerConfig) {
		c.core.ConsolePort = port
	}
}

// WithMemoryHeadroom sets the memory added on top of a template's RAM to
// form the workload memory limit, in MiB. Zero is allowed but leaves no
// room for hypervisor overhead.
//
// Default: 2048.
//
// Panics if mb < 0.
func WithMemoryHeadroom(mb int) Option {
	if mb < 0 {
		panic(fmt.Sprintf("bretterlabs: memory headroom must not be negative, got %d", mb))
	}
	return func(c *managerConfig) {
		c.core.MemoryHeadroomMB = mb
	}
}

// WithKVMPassthrough toggles mounting /dev/kvm into VM workloads (and
// running them privileged). Disable on clusters without hardware
// virtualization; VMs fall back to emulation.
//
// Default: enabled.
func WithKVMPassthrough(enabled bool) Option {
	return func(c *managerConfig) {
		c.core.KVMPassthrough = enabled
	}
}

// WithNodeSelector pins VM workloads to nodes carrying the given label.
// Panics if key or value is empty.
func WithNodeSelector(key, value string) Option {
	requireNonEmpty("node selector key", key)
	requireNonEmpty("node selector value", value)
	return func(c *managerConfig) {
		c.core.NodeSelectorKey = key
		c.core.NodeSelectorValue = value
	}
}

// WithRuntimeClass sets the RuntimeClass for VM workloads.
// Panics if name is empty.
func WithRuntimeClass(name string) Option {
	requireNonEmpty("runtime class", name)
	return func(c *managerConfig) {
		c.core.RuntimeClass = name
	}
}

// WithImagePullSecret names the pull secret for the runner image.
// Panics if name is empty.
func WithImagePullSecret(name string) Option {
	requireNonEmpty("image pull secret", name)
	return func(c *managerConfig) {
		c.core.ImagePullSecret = name
	}
}

// WithReaperInterval sets the idle reaper's tick interval.
//
// Default: 60 seconds.
//
// Panics if d <= 0.
func WithReaperInterval(d time.Duration) Option {
	requirePositive("reaper interval", d)
	return func(c *managerConfig) {
		c.core.ReaperInterval = d
	}
}

// WithDefaultIdleTimeout sets the fallback idle timeout used when neither
// the template nor the stored cluster configuration provides one.
//
// Default: 30 minutes.
//
// Panics if d <= 0.
func WithDefaultIdleTimeout(d time.Duration) Option {
	requirePositive("default idle timeout", d)
	return func(c *managerConfig) {
		c.core.DefaultIdleTimeout = d
	}
}

// WithHelperImage sets the image ingestion transfer helpers run. Anything
// with a POSIX shell and dd works.
//
// Default: alpine:3.19.
//
// Panics if image is empty.
func WithHelperImage(image string) Option {
	requireNonEmpty("helper image", image)
	return func(c *managerConfig) {
		c.helperImage = image
	}
}

// WithChunkSize sets the ingestion transfer chunk size in bytes. Must be a
// multiple of 1 MiB so chunk offsets stay block-aligned; larger chunks mean
// fewer round trips, smaller chunks mean cheaper retries.
//
// Default: 8 MiB.
//
// Panics if size is not a positive multiple of 1 MiB.
func WithChunkSize(size int64) Option {
	if size <= 0 || size%(1<<20) != 0 {
		panic(fmt.Sprintf("bretterlabs: chunk size must be a positive multiple of 1 MiB, got %d", size))
	}
	return func(c *managerConfig) {
		c.chunkSize = size
	}
}

// WithChunkAttempts sets how many times one ingestion chunk is attempted
// before the transfer fails.
//
// Default: 4.
//
// Panics if attempts < 1.
func WithChunkAttempts(attempts int) Option {
	requirePositive("chunk attempts", attempts)
	return func(c *managerConfig) {
		c.chunkAttempts = attempts
	}
}

// WithHelperReadyTimeout bounds how long ingestion waits for a helper
// workload to become ready before giving up.
//
// Default: 120 seconds.
//
// Panics if d <= 0.
func WithHelperReadyTimeout(d time.Duration) Option {
	requirePositive("helper ready timeout", d)
	return func(c *managerConfig) {
		c.helperReadyTimeout = d
	}
}
