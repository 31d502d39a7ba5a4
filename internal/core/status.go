package core

import (
	corev1 "k8s.io/api/core/v1"
)

// Status is the domain-level lifecycle state of an Instance. It is derived
// from (but deliberately decoupled from) the pod phase reported by the
// control plane: the orchestrator is the only writer of Status, and every
// external phase maps to exactly one Status via MapPhase.
type Status string

const (
	// StatusPending means the workload has been submitted but the VM is not
	// yet running.
	StatusPending Status = "pending"

	// StatusRunning means the workload's VM process is up.
	StatusRunning Status = "running"

	// StatusStopped means the workload was stopped by the owner or is absent
	// from the control plane.
	StatusStopped Status = "stopped"

	// StatusCompleted means the workload ran to completion on its own.
	StatusCompleted Status = "completed"

	// StatusFailed means the workload terminated abnormally.
	StatusFailed Status = "failed"

	// StatusUnknown is the catch-all for phases the control plane reports
	// that have no defined mapping. It keeps MapPhase total.
	StatusUnknown Status = "unknown"
)

// IsValid reports whether s is a recognized Status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusStopped, StatusCompleted, StatusFailed, StatusUnknown:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a terminal status. An owner may hold at
// most one instance in a non-terminal status at a time; admission control
// enforces this against the set of terminal statuses defined here.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// MapPhase maps a pod phase reported by the control plane to a domain
// Status. The mapping is total: every defined phase maps to exactly one
// Status, and any unrecognized value maps to StatusUnknown. Absence of the
// pod (a 404 on read) is not a phase; callers translate it to StatusStopped
// before reaching this function.
func MapPhase(phase corev1.PodPhase) Status {
	switch phase {
	case corev1.PodPending:
		return StatusPending
	case corev1.PodRunning:
		return StatusRunning
	case corev1.PodSucceeded:
		return StatusCompleted
	case corev1.PodFailed:
		return StatusFailed
	default:
		return StatusUnknown
	}
}
