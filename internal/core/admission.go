package core

import (
	"sync"

	"github.com/csufpsudocromis/bretter-labs/internal/fault"
)

// Rejection reasons returned to callers inside a fault.AdmissionError.
// They are user-facing strings; the routing layer forwards them verbatim.
const (
	// ReasonExistingLab rejects a start while the owner already has a lab
	// in a non-terminal status.
	ReasonExistingLab = "existing lab running"

	// ReasonClusterLimit rejects a start when the cluster-wide running
	// count has reached the configured maximum.
	ReasonClusterLimit = "cluster concurrency limit reached"

	// ReasonPerUserLimit rejects a start when the owner's non-terminal
	// count has reached the per-user maximum.
	ReasonPerUserLimit = "per-user concurrency limit reached"
)

// Admit decides whether owner may start another lab. owned is the owner's
// current instance set and runningTotal the cluster-wide count of running
// instances. Checks run in a fixed order and the first violation wins:
//
//  1. the owner has no instance in a non-terminal status,
//  2. the cluster running count is below ClusterConfig.MaxConcurrentVMs,
//  3. the owner's non-terminal count is below ClusterConfig.PerUserVMLimit.
//
// Admit is a pure decision function with no side effects, and it is not
// atomically fenced against instance creation. Orchestrator.StartLab holds
// the per-owner lock across Admit and the subsequent create so two
// concurrent starts for one owner cannot both pass check 1.
func Admit(owner string, cfg ClusterConfig, owned []Instance, runningTotal int) error {
	active := 0
	for _, inst := range owned {
		if !inst.Status.IsTerminal() {
			active++
		}
	}
	if active > 0 {
		return &fault.AdmissionError{Reason: ReasonExistingLab}
	}
	if runningTotal >= cfg.MaxConcurrentVMs {
		return &fault.AdmissionError{Reason: ReasonClusterLimit}
	}
	if active >= cfg.PerUserVMLimit {
		return &fault.AdmissionError{Reason: ReasonPerUserLimit}
	}
	return nil
}

// ownerLocks hands out one mutex per owner so StartLab can serialize the
// admit-then-create window per owner. Entries are never removed: the map is
// bounded by the number of distinct owners, which is small relative to the
// instances they churn through.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// get returns the mutex for owner, creating it on first use.
func (o *ownerLocks) get(owner string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locks == nil {
		o.locks = make(map[string]*sync.Mutex)
	}
	l, ok := o.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		o.locks[owner] = l
	}
	return l
}
