package bretterlabs

import "github.com/csufpsudocromis/bretter-labs/internal/core"

// Record and enum types are aliased from the internal core so the public
// API and the internal packages share one definition.
type (
	// Instance is the persisted record for one provisioned lab session.
	Instance = core.Instance

	// Template describes a pre-defined lab a user can request.
	Template = core.Template

	// Image is a registered disk image a template boots from.
	Image = core.Image

	// ClusterConfig holds cluster-wide concurrency and idle limits.
	ClusterConfig = core.ClusterConfig

	// Store is the persistence collaborator a Manager runs against. The
	// SQLite implementation in internal/store satisfies it; so does any
	// other backend with the same semantics.
	Store = core.Store

	// Status is an instance's lifecycle state.
	Status = core.Status

	// NetworkMode selects a template's network isolation posture.
	NetworkMode = core.NetworkMode
)

// Lifecycle states. Stopped, Completed, and Failed are terminal; everything
// else counts against admission limits.
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusStopped   = core.StatusStopped
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
	StatusUnknown   = core.StatusUnknown
)

// Network modes. Bridge, none, and isolated get an egress-only policy;
// host and unrestricted opt out of isolation entirely. Unrecognized modes
// are treated as isolating.
const (
	NetworkModeBridge       = core.NetworkModeBridge
	NetworkModeHost         = core.NetworkModeHost
	NetworkModeNone         = core.NetworkModeNone
	NetworkModeUnrestricted = core.NetworkModeUnrestricted
	NetworkModeIsolated     = core.NetworkModeIsolated
)
