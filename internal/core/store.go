package core

import (
	"context"
	"time"
)

// Instance is the persisted record for one provisioned VM session. The
// orchestrator is the only writer of Status; the surrounding system reads
// these records but never mutates them.
type Instance struct {
	ID           string
	TemplateID   string
	Owner        string
	Status       Status
	StartedAt    time.Time
	LastActiveAt time.Time
	ConsoleURL   string
}

// Template describes a pre-defined lab a user can request. Templates are
// external to the core and read-only during a single operation.
type Template struct {
	ID                 string
	Name               string
	Description        string
	OSType             string
	ImageID            string
	CPUCores           int
	RAMMB              int
	AutoDeleteMinutes  int
	IdleTimeoutMinutes int
	NetworkMode        NetworkMode
	Enabled            bool
	CreatedAt          time.Time
}

// Image is the registered disk image a template boots from. The core treats
// it as an opaque filename on shared storage plus a format hint derived from
// the suffix.
type Image struct {
	ID        string
	Name      string
	Filename  string
	Checksum  string
	SizeBytes int64
	CreatedAt time.Time
}

// ClusterConfig holds the cluster-wide concurrency and idle limits consulted
// by admission control and the reaper.
type ClusterConfig struct {
	MaxConcurrentVMs   int
	PerUserVMLimit     int
	IdleTimeoutMinutes int
}

// Store is the persisted-record collaborator the orchestrator runs against.
// It is plain CRUD with no business logic; implementations only need normal
// transaction isolation. The module ships a SQLite-backed implementation in
// internal/store, but any backend satisfying this interface works.
//
// All methods must be safe for concurrent use: the reaper shares the store
// with request-path operations.
type Store interface {
	// Instance returns the record with the given id, or an error wrapping
	// fault.ErrNotFound if no such record exists.
	Instance(ctx context.Context, id string) (Instance, error)

	// InstancesByOwner returns all records owned by owner, in no particular
	// order. An owner with no instances yields an empty slice, not an error.
	InstancesByOwner(ctx context.Context, owner string) ([]Instance, error)

	// InstancesByStatus returns all records currently in the given status.
	InstancesByStatus(ctx context.Context, status Status) ([]Instance, error)

	// CreateInstance persists a new record. Implementations should reject a
	// second non-terminal record for the same owner (see internal/store's
	// partial unique index); the orchestrator additionally serializes
	// admission per owner, so this is a backstop for multi-process setups.
	CreateInstance(ctx context.Context, inst Instance) error

	// UpdateInstance overwrites the record with the same ID.
	UpdateInstance(ctx context.Context, inst Instance) error

	// DeleteInstance removes the record. Deleting an absent record is not an
	// error.
	DeleteInstance(ctx context.Context, id string) error

	// Template returns the template with the given id, or an error wrapping
	// fault.ErrNotFound.
	Template(ctx context.Context, id string) (Template, error)

	// Image returns the image with the given id, or an error wrapping
	// fault.ErrNotFound.
	Image(ctx context.Context, id string) (Image, error)

	// ClusterConfig returns the cluster-wide limits.
	ClusterConfig(ctx context.Context) (ClusterConfig, error)
}
