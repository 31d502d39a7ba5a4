package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"

	"github.com/csufpsudocromis/bretter-labs/internal/core"
	"github.com/csufpsudocromis/bretter-labs/internal/fault"
)

// Compile-time check that Store satisfies the orchestrator's collaborator
// interface.
var _ core.Store = (*Store)(nil)

// Defaults for the bootstrapped cluster configuration row.
const (
	defaultMaxConcurrentVMs   = 50
	defaultPerUserVMLimit     = 2
	defaultIdleTimeoutMinutes = 30
)

// schema creates all tables and indexes. The partial unique index on owner
// enforces at most one non-terminal instance per owner at the storage
// layer, backing up the orchestrator's per-owner admission serialization
// when several processes share one database.
const schema = `
CREATE TABLE IF NOT EXISTS instances (
	id             TEXT PRIMARY KEY,
	template_id    TEXT NOT NULL,
	owner          TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	last_active_at TEXT NOT NULL,
	console_url    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_instances_owner ON instances(owner);
CREATE INDEX IF NOT EXISTS idx_instances_status ON instances(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_owner_active
	ON instances(owner)
	WHERE status NOT IN ('stopped', 'completed', 'failed');

CREATE TABLE IF NOT EXISTS templates (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	os_type              TEXT NOT NULL,
	image_id             TEXT NOT NULL,
	cpu_cores            INTEGER NOT NULL,
	ram_mb               INTEGER NOT NULL,
	auto_delete_minutes  INTEGER NOT NULL DEFAULT 0,
	idle_timeout_minutes INTEGER NOT NULL DEFAULT 0,
	network_mode         TEXT NOT NULL DEFAULT 'bridge',
	enabled              INTEGER NOT NULL DEFAULT 1,
	created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS images (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	filename   TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cluster_config (
	id                   INTEGER PRIMARY KEY CHECK (id = 1),
	max_concurrent_vms   INTEGER NOT NULL,
	per_user_vm_limit    INTEGER NOT NULL,
	idle_timeout_minutes INTEGER NOT NULL
);
`

// Store is the SQLite-backed record store. Safe for concurrent use; writes
// serialize on SQLite's single-writer lock with a generous busy timeout.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the database at path, applies the schema,
// and bootstraps the cluster configuration row with defaults if absent.
func Open(path string) (*Store, error) {
	// WAL keeps readers unblocked during writes; NORMAL synchronous is
	// enough for operational records that can be reconciled from the
	// cluster after a crash.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO cluster_config (id, max_concurrent_vms, per_user_vm_limit, idle_timeout_minutes) VALUES (1, ?, ?, ?)`,
		defaultMaxConcurrentVMs, defaultPerUserVMLimit, defaultIdleTimeoutMinutes,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap cluster config: %w", err)
	}

	return &Store{db: db, log: core.Logger().With("component", "store")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const instanceColumns = `id, template_id, owner, status, started_at, last_active_at, console_url`

// Instance implements core.Store.
func (s *Store) Instance(ctx context.Context, id string) (core.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Instance{}, fmt.Errorf("instance %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return core.Instance{}, fmt.Errorf("read instance %s: %w", id, err)
	}
	return inst, nil
}

// InstancesByOwner implements core.Store.
func (s *Store) InstancesByOwner(ctx context.Context, owner string) ([]core.Instance, error) {
	return s.queryInstances(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE owner = ?`, owner)
}

// InstancesByStatus implements core.Store.
func (s *Store) InstancesByStatus(ctx context.Context, status core.Status) ([]core.Instance, error) {
	return s.queryInstances(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE status = ?`, string(status))
}

func (s *Store) queryInstances(ctx context.Context, query string, args ...any) ([]core.Instance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	out := []core.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance rows: %w", err)
	}
	return out, nil
}

// CreateInstance implements core.Store. The partial unique index rejects a
// second non-terminal instance for the same owner.
func (s *Store) CreateInstance(ctx context.Context, inst core.Instance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.TemplateID, inst.Owner, string(inst.Status),
		formatTime(inst.StartedAt), formatTime(inst.LastActiveAt), inst.ConsoleURL,
	)
	if err != nil {
		return fmt.Errorf("insert instance %s: %w", inst.ID, err)
	}
	return nil
}

// UpdateInstance implements core.Store.
func (s *Store) UpdateInstance(ctx context.Context, inst core.Instance) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances SET template_id = ?, owner = ?, status = ?, started_at = ?, last_active_at = ?, console_url = ? WHERE id = ?`,
		inst.TemplateID, inst.Owner, string(inst.Status),
		formatTime(inst.StartedAt), formatTime(inst.LastActiveAt), inst.ConsoleURL,
		inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update instance %s: %w", inst.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("instance %s: %w", inst.ID, fault.ErrNotFound)
	}
	return nil
}

// DeleteInstance implements core.Store. Deleting an absent record succeeds.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}
	return nil
}

// Template implements core.Store.
func (s *Store) Template(ctx context.Context, id string) (core.Template, error) {
	var (
		tpl       core.Template
		enabled   int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, os_type, image_id, cpu_cores, ram_mb, auto_delete_minutes, idle_timeout_minutes, network_mode, enabled, created_at
		 FROM templates WHERE id = ?`, id,
	).Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.OSType, &tpl.ImageID,
		&tpl.CPUCores, &tpl.RAMMB, &tpl.AutoDeleteMinutes, &tpl.IdleTimeoutMinutes,
		&tpl.NetworkMode, &enabled, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Template{}, fmt.Errorf("template %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return core.Template{}, fmt.Errorf("read template %s: %w", id, err)
	}
	tpl.Enabled = enabled != 0
	tpl.CreatedAt = parseTime(createdAt)
	return tpl, nil
}

// SaveTemplate inserts or replaces a template record. Not part of
// core.Store; administrative flows use it directly.
func (s *Store) SaveTemplate(ctx context.Context, tpl core.Template) error {
	enabled := 0
	if tpl.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO templates (id, name, description, os_type, image_id, cpu_cores, ram_mb, auto_delete_minutes, idle_timeout_minutes, network_mode, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.Name, tpl.Description, tpl.OSType, tpl.ImageID,
		tpl.CPUCores, tpl.RAMMB, tpl.AutoDeleteMinutes, tpl.IdleTimeoutMinutes,
		string(tpl.NetworkMode), enabled, formatTime(tpl.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save template %s: %w", tpl.ID, err)
	}
	return nil
}

// Image implements core.Store.
func (s *Store) Image(ctx context.Context, id string) (core.Image, error) {
	var (
		img       core.Image
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, filename, checksum, size_bytes, created_at FROM images WHERE id = ?`, id,
	).Scan(&img.ID, &img.Name, &img.Filename, &img.Checksum, &img.SizeBytes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Image{}, fmt.Errorf("image %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return core.Image{}, fmt.Errorf("read image %s: %w", id, err)
	}
	img.CreatedAt = parseTime(createdAt)
	return img, nil
}

// SaveImage inserts or replaces an image record. Typically called with the
// recomputed checksum and size from an ingest result.
func (s *Store) SaveImage(ctx context.Context, img core.Image) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO images (id, name, filename, checksum, size_bytes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.Name, img.Filename, img.Checksum, img.SizeBytes, formatTime(img.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save image %s: %w", img.ID, err)
	}
	return nil
}

// DeleteImage removes an image record. Deleting an absent record succeeds.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete image %s: %w", id, err)
	}
	return nil
}

// ClusterConfig implements core.Store.
func (s *Store) ClusterConfig(ctx context.Context) (core.ClusterConfig, error) {
	var cfg core.ClusterConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT max_concurrent_vms, per_user_vm_limit, idle_timeout_minutes FROM cluster_config WHERE id = 1`,
	).Scan(&cfg.MaxConcurrentVMs, &cfg.PerUserVMLimit, &cfg.IdleTimeoutMinutes)
	if err != nil {
		return core.ClusterConfig{}, fmt.Errorf("read cluster config: %w", err)
	}
	return cfg, nil
}

// SetClusterConfig overwrites the cluster-wide limits.
func (s *Store) SetClusterConfig(ctx context.Context, cfg core.ClusterConfig) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cluster_config SET max_concurrent_vms = ?, per_user_vm_limit = ?, idle_timeout_minutes = ? WHERE id = 1`,
		cfg.MaxConcurrentVMs, cfg.PerUserVMLimit, cfg.IdleTimeoutMinutes,
	)
	if err != nil {
		return fmt.Errorf("update cluster config: %w", err)
	}
	return nil
}

// scanner is the common surface of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (core.Instance, error) {
	var (
		inst                  core.Instance
		status                string
		startedAt, lastActive string
	)
	if err := row.Scan(&inst.ID, &inst.TemplateID, &inst.Owner, &status,
		&startedAt, &lastActive, &inst.ConsoleURL); err != nil {
		return core.Instance{}, err
	}
	inst.Status = core.Status(status)
	inst.StartedAt = parseTime(startedAt)
	inst.LastActiveAt = parseTime(lastActive)
	return inst, nil
}

// Timestamps are stored as RFC 3339 UTC text; lexical order matches time
// order, which keeps them greppable and comparable in ad-hoc queries.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
