package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/csufpsudocromis/bretter-labs/internal/core"
	"github.com/csufpsudocromis/bretter-labs/internal/fault"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
	return st
}

func testInstance(id, owner string, status core.Status) core.Instance {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return core.Instance{
		ID:           id,
		TemplateID:   "tpl-1",
		Owner:        owner,
		Status:       status,
		StartedAt:    now,
		LastActiveAt: now,
		ConsoleURL:   "http://labs.test:30080/spice_auto.html",
	}
}

func TestOpenBootstrapsClusterConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := openTestStore(t)
	cfg, err := st.ClusterConfig(ctx)
	if err != nil {
		t.Fatalf("ClusterConfig() = %v", err)
	}
	want := core.ClusterConfig{MaxConcurrentVMs: 50, PerUserVMLimit: 2, IdleTimeoutMinutes: 30}
	if cfg != want {
		t.Errorf("bootstrapped config = %+v, want %+v", cfg, want)
	}
}

func TestSetClusterConfigDoesNotReBootstrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	st, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	want := core.ClusterConfig{MaxConcurrentVMs: 5, PerUserVMLimit: 1, IdleTimeoutMinutes: 10}
	if err := st.SetClusterConfig(ctx, want); err != nil {
		t.Fatalf("SetClusterConfig() = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening must keep the operator's values, not reset to defaults.
	st, err = Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.ClusterConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("config after reopen = %+v, want %+v", got, want)
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := openTestStore(t)
	inst := testInstance("i-1", "student42", core.StatusPending)

	if err := st.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance() = %v", err)
	}
	got, err := st.Instance(ctx, "i-1")
	if err != nil {
		t.Fatalf("Instance() = %v", err)
	}
	if got != inst {
		t.Errorf("round trip = %+v, want %+v", got, inst)
	}

	inst.Status = core.StatusRunning
	inst.LastActiveAt = inst.LastActiveAt.Add(time.Minute)
	if err := st.UpdateInstance(ctx, inst); err != nil {
		t.Fatalf("UpdateInstance() = %v", err)
	}
	got, err = st.Instance(ctx, "i-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusRunning || !got.LastActiveAt.Equal(inst.LastActiveAt) {
		t.Errorf("after update = %+v", got)
	}

	if err := st.DeleteInstance(ctx, "i-1"); err != nil {
		t.Fatalf("DeleteInstance() = %v", err)
	}
	if _, err := st.Instance(ctx, "i-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("Instance() after delete = %v, want ErrNotFound", err)
	}
	// Deleting again is not an error.
	if err := st.DeleteInstance(ctx, "i-1"); err != nil {
		t.Errorf("repeated DeleteInstance() = %v", err)
	}
}

func TestUpdateAbsentInstance(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	err := st.UpdateInstance(context.Background(), testInstance("ghost", "nobody", core.StatusRunning))
	if !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("UpdateInstance() = %v, want ErrNotFound", err)
	}
}

func TestSecondActiveInstancePerOwnerRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := openTestStore(t)
	if err := st.CreateInstance(ctx, testInstance("i-1", "student42", core.StatusRunning)); err != nil {
		t.Fatal(err)
	}

	// A second non-terminal record for the same owner hits the partial
	// unique index.
	if err := st.CreateInstance(ctx, testInstance("i-2", "student42", core.StatusPending)); err == nil {
		t.Fatal("second active instance for one owner should be rejected")
	}

	// Terminal records do not occupy the slot.
	if err := st.CreateInstance(ctx, testInstance("i-3", "student42", core.StatusStopped)); err != nil {
		t.Errorf("terminal instance rejected: %v", err)
	}

	// Other owners are unaffected.
	if err := st.CreateInstance(ctx, testInstance("i-4", "worker", core.StatusRunning)); err != nil {
		t.Errorf("other owner rejected: %v", err)
	}

	// Once the active record turns terminal, the slot frees up.
	inst := testInstance("i-1", "student42", core.StatusStopped)
	if err := st.UpdateInstance(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateInstance(ctx, testInstance("i-5", "student42", core.StatusPending)); err != nil {
		t.Errorf("new instance after stop rejected: %v", err)
	}
}

func TestInstanceQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := openTestStore(t)
	seed := []core.Instance{
		testInstance("i-1", "alice", core.StatusRunning),
		testInstance("i-2", "alice", core.StatusStopped),
		testInstance("i-3", "bob", core.StatusRunning),
	}
	for _, inst := range seed {
		if err := st.CreateInstance(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}

	byOwner, err := st.InstancesByOwner(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(byOwner) != 2 {
		t.Errorf("alice instances = %d, want 2", len(byOwner))
	}

	none, err := st.InstancesByOwner(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("unknown owner = %v, want empty non-nil slice", none)
	}

	running, err := st.InstancesByStatus(ctx, core.StatusRunning)
	if err != nil {
		t.Fatal(err)
	}
	if len(running) != 2 {
		t.Errorf("running instances = %d, want 2", len(running))
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := openTestStore(t)
	tpl := core.Template{
		ID:                 "tpl-1",
		Name:               "Debian Lab",
		Description:        "general purpose linux lab",
		OSType:             "linux",
		ImageID:            "img-1",
		CPUCores:           2,
		RAMMB:              4096,
		AutoDeleteMinutes:  60,
		IdleTimeoutMinutes: 45,
		NetworkMode:        core.NetworkModeBridge,
		Enabled:            true,
		CreatedAt:          time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := st.SaveTemplate(ctx, tpl); err != nil {
		t.Fatalf("SaveTemplate() = %v", err)
	}
	got, err := st.Template(ctx, "tpl-1")
	if err != nil {
		t.Fatalf("Template() = %v", err)
	}
	if got != tpl {
		t.Errorf("round trip = %+v, want %+v", got, tpl)
	}

	if _, err := st.Template(ctx, "ghost"); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("absent template = %v, want ErrNotFound", err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := openTestStore(t)
	img := core.Image{
		ID:        "img-1",
		Name:      "debian-12",
		Filename:  "debian-12.raw",
		Checksum:  "c0ffee",
		SizeBytes: 8 << 30,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := st.SaveImage(ctx, img); err != nil {
		t.Fatalf("SaveImage() = %v", err)
	}
	got, err := st.Image(ctx, "img-1")
	if err != nil {
		t.Fatalf("Image() = %v", err)
	}
	if got != img {
		t.Errorf("round trip = %+v, want %+v", got, img)
	}

	if err := st.DeleteImage(ctx, "img-1"); err != nil {
		t.Fatalf("DeleteImage() = %v", err)
	}
	if _, err := st.Image(ctx, "img-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("Image() after delete = %v, want ErrNotFound", err)
	}
}
