package bretterlabs

import "time"

// ConfigSnapshot is a flat, read-only view of the assembled manager
// configuration, exposed to tests only.
type ConfigSnapshot struct {
	Namespace          string
	RunnerImage        string
	ImagePVC           string
	ExternalHost       string
	EmbedConfigMap     string
	ConsolePort        int32
	MemoryHeadroomMB   int
	KVMPassthrough     bool
	NodeSelectorKey    string
	NodeSelectorValue  string
	RuntimeClass       string
	ImagePullSecret    string
	ReaperInterval     time.Duration
	DefaultIdleTimeout time.Duration

	HelperImage        string
	ChunkSize          int64
	ChunkAttempts      int
	HelperReadyTimeout time.Duration
}

// ApplyOptionsForTesting applies opts over the defaults and returns the
// resulting configuration for inspection, without constructing a Manager.
func ApplyOptionsForTesting(opts ...Option) ConfigSnapshot {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return ConfigSnapshot{
		Namespace:          cfg.core.Namespace,
		RunnerImage:        cfg.core.RunnerImage,
		ImagePVC:           cfg.core.ImagePVC,
		ExternalHost:       cfg.core.ExternalHost,
		EmbedConfigMap:     cfg.core.EmbedConfigMap,
		ConsolePort:        cfg.core.ConsolePort,
		MemoryHeadroomMB:   cfg.core.MemoryHeadroomMB,
		KVMPassthrough:     cfg.core.KVMPassthrough,
		NodeSelectorKey:    cfg.core.NodeSelectorKey,
		NodeSelectorValue:  cfg.core.NodeSelectorValue,
		RuntimeClass:       cfg.core.RuntimeClass,
		ImagePullSecret:    cfg.core.ImagePullSecret,
		ReaperInterval:     cfg.core.ReaperInterval,
		DefaultIdleTimeout: cfg.core.DefaultIdleTimeout,
		HelperImage:        cfg.helperImage,
		ChunkSize:          cfg.chunkSize,
		ChunkAttempts:      cfg.chunkAttempts,
		HelperReadyTimeout: cfg.helperReadyTimeout,
	}
}
