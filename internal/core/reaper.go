package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// reapConcurrency bounds parallel teardown inside one tick so a large batch
// of stale instances cannot flood the control plane.
const reapConcurrency = 4

// Reaper periodically reclaims running instances that have been idle past
// their timeout. One reaper serves one orchestrator; ticks never overlap
// and a slow tick is skipped rather than queued.
type Reaper struct {
	orch *Orchestrator
	cron *cron.Cron
	log  *slog.Logger
}

// NewReaper creates a stopped reaper for the given orchestrator.
// Panics if orch is nil.
func NewReaper(orch *Orchestrator) *Reaper {
	if orch == nil {
		panic("bretterlabs: reaper orchestrator must not be nil")
	}
	log := Logger().With("component", "reaper")
	return &Reaper{
		orch: orch,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		log: log,
	}
}

// Start schedules the tick at the orchestrator's reaper interval and starts
// the scheduler goroutine. The first tick fires one interval after Start.
func (r *Reaper) Start() error {
	spec := fmt.Sprintf("@every %s", r.orch.Config().ReaperInterval)
	if _, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.orch.Config().ReaperInterval)
		defer cancel()
		r.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	r.cron.Start()
	r.log.Info("reaper started", "interval", r.orch.Config().ReaperInterval)
	return nil
}

// Stop halts the schedule and blocks until an in-flight tick finishes.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("reaper stopped")
}

// runOnce performs a single reap pass. Every fault inside the pass is
// logged and skipped; the pass itself never fails, so one bad instance or a
// flaky store read cannot stall reclamation of the rest.
func (r *Reaper) runOnce(ctx context.Context) {
	clusterCfg, err := r.orch.store.ClusterConfig(ctx)
	if err != nil {
		r.log.Warn("load cluster config", "error", err)
		return
	}
	running, err := r.orch.store.InstancesByStatus(ctx, StatusRunning)
	if err != nil {
		r.log.Warn("list running instances", "error", err)
		return
	}

	now := time.Now().UTC()
	templates := make(map[string]*Template)
	var stale []Instance
	for _, inst := range running {
		timeout := r.idleTimeout(ctx, templates, inst.TemplateID, clusterCfg)
		if now.Sub(inst.LastActiveAt) > timeout {
			stale = append(stale, inst)
		}
	}
	if len(stale) == 0 {
		return
	}
	r.log.Info("reaping idle instances", "count", len(stale))

	g := new(errgroup.Group)
	g.SetLimit(reapConcurrency)
	for _, inst := range stale {
		g.Go(func() error {
			r.orch.reclaim(ctx, inst)
			return nil
		})
	}
	g.Wait() // reclaim logs its own faults, nothing to collect
}

// idleTimeout resolves the effective idle timeout for an instance: the
// larger of the template override and the cluster-wide setting, falling
// back to the configured default when neither is set.
func (r *Reaper) idleTimeout(ctx context.Context, cache map[string]*Template, templateID string, clusterCfg ClusterConfig) time.Duration {
	minutes := clusterCfg.IdleTimeoutMinutes
	if tpl := r.orch.cachedTemplate(ctx, cache, templateID); tpl != nil && tpl.IdleTimeoutMinutes > minutes {
		minutes = tpl.IdleTimeoutMinutes
	}
	if minutes <= 0 {
		return r.orch.Config().DefaultIdleTimeout
	}
	return time.Duration(minutes) * time.Minute
}
