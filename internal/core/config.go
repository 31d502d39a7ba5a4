package core

import (
	"errors"
	"fmt"
	"time"
)

// Config holds configuration for an Orchestrator.
//
// Concurrency contract: all fields are immutable after construction via
// NewOrchestrator. The reaper goroutine and request-path operations read
// them without synchronization, relying on this guarantee.
type Config struct {
	// Namespace is the cluster namespace all workloads, services, and
	// network policies are created in. Ensured to exist on first create.
	Namespace string

	// RunnerImage is the container image that boots the VM against its
	// scratch disk copy. Also used by ingestion helpers that need the
	// runtime's image tool.
	RunnerImage string

	// ImagePVC is the claim name of the shared storage volume holding disk
	// images. Mounted read-only by VM workloads and read-write by ingestion
	// helper workloads.
	ImagePVC string

	// ExternalHost is the externally reachable host used when templating
	// console URLs.
	ExternalHost string

	// EmbedConfigMap optionally names a ConfigMap carrying the slim console
	// embed page. When set, the page is mounted into VM workloads and
	// console URLs point at it; when empty, URLs fall back to the stock
	// auto-connect page.
	EmbedConfigMap string

	// ConsolePort is the fixed in-workload console port exposed through a
	// cluster-assigned external port.
	ConsolePort int32

	// MemoryHeadroomMB is added to the template's RAM request to form the
	// container memory limit, keeping host-side hypervisor overhead from
	// tripping the container memory budget.
	MemoryHeadroomMB int

	// KVMPassthrough mounts /dev/kvm into VM workloads and runs them
	// privileged. Disable on clusters without KVM.
	KVMPassthrough bool

	// NodeSelectorKey and NodeSelectorValue optionally pin VM workloads to
	// a node. Both must be set for the selector to apply.
	NodeSelectorKey   string
	NodeSelectorValue string

	// RuntimeClass optionally names the RuntimeClass for VM workloads.
	RuntimeClass string

	// ImagePullSecret optionally names the pull secret for the runner image.
	ImagePullSecret string

	// ReaperInterval is the fixed tick interval of the idle reaper.
	ReaperInterval time.Duration

	// DefaultIdleTimeout is the fallback idle timeout applied when neither
	// the template nor the persisted cluster config provides one.
	DefaultIdleTimeout time.Duration
}

// Validate checks all Config invariants and returns an error describing
// every violation found. It uses errors.Join so callers can fix all problems
// in a single pass.
//
// Validate is called by NewOrchestrator, which panics on error since invalid
// configuration is a programmer error.
func (c Config) Validate() error {
	var errs []error

	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace must not be empty"))
	}
	if c.RunnerImage == "" {
		errs = append(errs, errors.New("runner image must not be empty"))
	}
	if c.ImagePVC == "" {
		errs = append(errs, errors.New("image PVC claim name must not be empty"))
	}
	if c.ExternalHost == "" {
		errs = append(errs, errors.New("external host must not be empty"))
	}
	if c.ConsolePort <= 0 {
		errs = append(errs, fmt.Errorf("console port must be greater than 0, got %d", c.ConsolePort))
	}
	if c.MemoryHeadroomMB < 0 {
		errs = append(errs, fmt.Errorf("memory headroom must not be negative, got %d", c.MemoryHeadroomMB))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, fmt.Errorf("reaper interval must be greater than 0, got %s", c.ReaperInterval))
	}
	if c.DefaultIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("default idle timeout must be greater than 0, got %s", c.DefaultIdleTimeout))
	}

	return errors.Join(errs...)
}
