package bretterlabs

import "time"

// Default configuration values for NewManager. Exported so callers can
// reference the defaults when building custom configurations relative to
// them.
const (
	// DefaultNamespace is the cluster namespace all lab workloads run in.
	DefaultNamespace = "bretter-labs"

	// DefaultRunnerImage boots VM workloads and carries qemu-img for image
	// tooling. Most deployments override this with a pinned registry tag.
	DefaultRunnerImage = "ghcr.io/csufpsudocromis/vm-runner:latest"

	// DefaultImagePVC is the claim name of the shared disk-image volume.
	DefaultImagePVC = "vm-images"

	// DefaultConsolePort is the fixed in-workload console port.
	DefaultConsolePort = 6080

	// DefaultMemoryHeadroomMB is added to a template's RAM to form the
	// workload memory limit, absorbing hypervisor overhead.
	DefaultMemoryHeadroomMB = 2048

	// DefaultReaperInterval is the idle reaper's tick interval.
	DefaultReaperInterval = 60 * time.Second

	// DefaultIdleTimeout is the fallback idle timeout when neither the
	// template nor the stored cluster configuration provides one.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultKVMPassthrough mounts /dev/kvm into workloads. Disable on
	// clusters without hardware virtualization.
	DefaultKVMPassthrough = true

	// DefaultHelperImage runs ingestion transfer helpers. Anything with a
	// POSIX shell and dd works.
	DefaultHelperImage = "alpine:3.19"

	// DefaultChunkSize is the ingestion transfer chunk size. Must stay a
	// multiple of 1 MiB so chunk offsets remain block-aligned.
	DefaultChunkSize = 8 << 20

	// DefaultChunkAttempts is how many times one ingestion chunk is
	// attempted before the transfer fails.
	DefaultChunkAttempts = 4

	// DefaultHelperReadyTimeout bounds how long ingestion waits for a
	// helper workload to become ready.
	DefaultHelperReadyTimeout = 120 * time.Second
)
