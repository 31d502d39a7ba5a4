package bretterlabs

import (
	"context"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/csufpsudocromis/bretter-labs/internal/core"
	"github.com/csufpsudocromis/bretter-labs/internal/ingest"
	"github.com/csufpsudocromis/bretter-labs/internal/kubeexec"
)

// managerConfig collects everything NewManager assembles from defaults and
// options before constructing the internal components.
type managerConfig struct {
	core core.Config

	helperImage        string
	chunkSize          int64
	chunkAttempts      int
	helperReadyTimeout time.Duration
}

// defaultManagerConfig returns a managerConfig populated with all default
// values. NewManager and test helpers use this to avoid duplicating the
// default field assignments. ExternalHost has no default and must be set
// through WithExternalHost.
func defaultManagerConfig() managerConfig {
	return managerConfig{
		core: core.Config{
			Namespace:          DefaultNamespace,
			RunnerImage:        DefaultRunnerImage,
			ImagePVC:           DefaultImagePVC,
			ConsolePort:        DefaultConsolePort,
			MemoryHeadroomMB:   DefaultMemoryHeadroomMB,
			KVMPassthrough:     DefaultKVMPassthrough,
			ReaperInterval:     DefaultReaperInterval,
			DefaultIdleTimeout: DefaultIdleTimeout,
		},
		helperImage:        DefaultHelperImage,
		chunkSize:          DefaultChunkSize,
		chunkAttempts:      DefaultChunkAttempts,
		helperReadyTimeout: DefaultHelperReadyTimeout,
	}
}

// Manager is the public entry point: one Manager serves one cluster, one
// namespace, and one record store. Construct it explicitly with NewManager
// and share it; there is no process-level singleton, so tests and
// multi-cluster deployments can hold several Managers side by side.
//
// Safe for concurrent use.
type Manager struct {
	orch   *core.Orchestrator
	reaper *core.Reaper
	ingest *ingest.Ingestor
	store  Store
}

// NewManager builds a Manager against the cluster described by restConfig,
// persisting records in st. Options override defaults; WithExternalHost is
// effectively required since console URLs cannot be templated without it.
//
// NewManager performs no cluster I/O; the first StartLab call ensures the
// namespace exists.
//
// Panics if an option receives an invalid value (see individual With*
// functions); returns an error for invalid assembled configuration or a
// rest config the client cannot be built from.
func NewManager(restConfig *rest.Config, st Store, opts ...Option) (*Manager, error) {
	if restConfig == nil {
		return nil, fmt.Errorf("rest config must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}

	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.core.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("build cluster client: %w", err)
	}
	exec, err := kubeexec.NewSPDY(restConfig, cfg.core.Namespace)
	if err != nil {
		return nil, err
	}

	orch := core.NewOrchestrator(core.OrchestratorParams{
		Client: client,
		Exec:   exec,
		Store:  st,
		Config: cfg.core,
	})
	ing := ingest.New(client, exec, ingest.Config{
		Namespace:     cfg.core.Namespace,
		ImagePVC:      cfg.core.ImagePVC,
		HelperImage:   cfg.helperImage,
		ToolImage:     cfg.core.RunnerImage,
		ChunkSize:     cfg.chunkSize,
		ChunkAttempts: cfg.chunkAttempts,
		ReadyTimeout:  cfg.helperReadyTimeout,
	})

	return &Manager{
		orch:   orch,
		reaper: core.NewReaper(orch),
		ingest: ing,
		store:  st,
	}, nil
}

// StartLab provisions a new lab session of the given template for owner and
// returns its record, console URL included. Returns an error satisfying
// IsAdmissionRejected when admission control refuses the request.
func (m *Manager) StartLab(ctx context.Context, owner, templateID string) (Instance, error) {
	return m.orch.StartLab(ctx, owner, templateID)
}

// Instances reconciles and returns owner's instance records. Calling this
// counts as owner activity: pending and running instances get their idle
// clock reset.
func (m *Manager) Instances(ctx context.Context, owner string) ([]Instance, error) {
	return m.orch.PollOwner(ctx, owner)
}

// StopInstance gracefully stops owner's instance. Stopping an instance
// whose workload is already gone or terminal succeeds and records the
// observed state.
func (m *Manager) StopInstance(ctx context.Context, owner, instanceID string) (Instance, error) {
	return m.orch.StopInstance(ctx, owner, instanceID)
}

// RestartInstance tears the instance's workload down and provisions it
// again under the same id. The previous console URL stops working; the
// returned record carries the new one.
func (m *Manager) RestartInstance(ctx context.Context, owner, instanceID string) (Instance, error) {
	return m.orch.RestartInstance(ctx, owner, instanceID)
}

// DeleteInstance force-removes owner's instance: workload, console
// publication, isolation policy, and record. An already-absent workload
// counts as success.
func (m *Manager) DeleteInstance(ctx context.Context, owner, instanceID string) error {
	return m.orch.DeleteInstance(ctx, owner, instanceID)
}

// IngestResult reports what IngestImage produced: the final on-volume
// filename and recomputed integrity attributes for the image record.
type IngestResult = ingest.Result

// IngestImage transfers the staged local file at srcPath onto the shared
// image volume as destName, validates it, and optionally converts it to raw
// format. Record creation stays with the caller: persist an Image from the
// result only when the error is nil.
func (m *Manager) IngestImage(ctx context.Context, srcPath, destName string, convertToRaw bool) (IngestResult, error) {
	return m.ingest.IngestFile(ctx, srcPath, destName, convertToRaw)
}

// StartReaper starts the background idle reaper. Call once; the reaper
// ticks at the configured interval until StopReaper.
func (m *Manager) StartReaper() error {
	return m.reaper.Start()
}

// StopReaper stops the idle reaper, waiting for an in-flight tick.
func (m *Manager) StopReaper() {
	m.reaper.Stop()
}

// Store returns the record store the Manager was constructed with, for
// administrative flows (template and image management) that live outside
// the orchestrator.
func (m *Manager) Store() Store {
	return m.store
}
