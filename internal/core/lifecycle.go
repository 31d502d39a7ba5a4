package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/csufpsudocromis/bretter-labs/internal/fault"
	"github.com/csufpsudocromis/bretter-labs/internal/kubeexec"
)

// ErrTemplateDisabled is returned by StartLab and RestartInstance when the
// requested template exists but is not enabled for use.
const ErrTemplateDisabled = fault.Error("template disabled")

// stopSignalCommand asks the hypervisor process (pid 1 in the runner) to
// shut down gracefully. The trailing "|| true" keeps the exec from
// reporting failure when the process is already gone.
var stopSignalCommand = []string{"/bin/sh", "-c", "kill -TERM 1 || true"}

// StartLab provisions a new instance of the given template for owner.
// The flow is admission → disk parameter resolution → workload creation →
// network policy → console publication → record creation; the per-owner
// lock is held across the whole window so concurrent starts for one owner
// serialize instead of double-admitting.
//
// Returns a *fault.AdmissionError when admission rejects the request.
func (o *Orchestrator) StartLab(ctx context.Context, owner, templateID string) (Instance, error) {
	lock := o.owners.get(owner)
	lock.Lock()
	defer lock.Unlock()

	tpl, img, err := o.loadTemplate(ctx, templateID)
	if err != nil {
		return Instance{}, err
	}

	clusterCfg, err := o.store.ClusterConfig(ctx)
	if err != nil {
		return Instance{}, fmt.Errorf("load cluster config: %w", err)
	}
	owned, err := o.store.InstancesByOwner(ctx, owner)
	if err != nil {
		return Instance{}, fmt.Errorf("list instances for %s: %w", owner, err)
	}
	running, err := o.store.InstancesByStatus(ctx, StatusRunning)
	if err != nil {
		return Instance{}, fmt.Errorf("count running instances: %w", err)
	}
	if err := Admit(owner, clusterCfg, owned, len(running)); err != nil {
		return Instance{}, err
	}

	instanceID := uuid.NewString()
	if err := o.ensureNamespace(ctx); err != nil {
		return Instance{}, err
	}
	consoleURL, err := o.provision(ctx, tpl, img, owner, instanceID)
	if err != nil {
		return Instance{}, err
	}

	now := time.Now().UTC()
	inst := Instance{
		ID:           instanceID,
		TemplateID:   tpl.ID,
		Owner:        owner,
		Status:       StatusPending,
		StartedAt:    now,
		LastActiveAt: now,
		ConsoleURL:   consoleURL,
	}
	if err := o.store.CreateInstance(ctx, inst); err != nil {
		return Instance{}, fmt.Errorf("persist instance %s: %w", instanceID, err)
	}
	o.log.Info("lab started", "instance", instanceID, "owner", owner, "template", tpl.ID)
	return inst, nil
}

// provision submits the workload and wires its surroundings: isolation
// policy (unless the mode opts out) and console publication. Returns the
// templated console URL.
func (o *Orchestrator) provision(ctx context.Context, tpl Template, img Image, owner, instanceID string) (string, error) {
	pod := buildWorkload(o.cfg, tpl, img, owner, instanceID)
	if _, err := o.client.CoreV1().Pods(o.cfg.Namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("create workload %s: %w", pod.Name, err)
	}

	mode := tpl.NetworkMode
	if mode == "" {
		mode = NetworkModeBridge
	}
	if mode.Isolating() {
		if err := o.applyNetworkPolicy(ctx, pod.Name, mode); err != nil {
			return "", err
		}
	}

	port, err := o.publishConsole(ctx, pod.Name, instanceID)
	if err != nil {
		return "", err
	}
	return o.consoleURL(port, tpl.Name), nil
}

// PollOwner reconciles all of owner's instance records against the control
// plane and returns the surviving records. Each poll is also a liveness
// heartbeat for pending/running instances, so an actively viewed session is
// never reclaimed purely due to inactivity-detection lag. Stopped or
// completed instances past their template's auto-delete window are
// reclaimed opportunistically; those reclamation faults are logged, never
// surfaced.
func (o *Orchestrator) PollOwner(ctx context.Context, owner string) ([]Instance, error) {
	owned, err := o.store.InstancesByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list instances for %s: %w", owner, err)
	}

	templates := make(map[string]*Template)
	out := make([]Instance, 0, len(owned))
	for _, inst := range owned {
		now := time.Now().UTC()
		changed := false

		// The owning caller is looking at this instance right now.
		if inst.Status == StatusRunning || inst.Status == StatusPending {
			inst.LastActiveAt = now
			changed = true
		}

		status, err := o.observeWorkload(ctx, WorkloadName(inst.Owner, inst.ID))
		if err != nil {
			return nil, err
		}
		if status != inst.Status {
			inst.Status = status
			inst.LastActiveAt = now
			changed = true
		}

		if tpl := o.cachedTemplate(ctx, templates, inst.TemplateID); tpl != nil &&
			(inst.Status == StatusStopped || inst.Status == StatusCompleted) &&
			tpl.AutoDeleteMinutes > 0 {
			cutoff := now.Add(-time.Duration(tpl.AutoDeleteMinutes) * time.Minute)
			if inst.LastActiveAt.Before(cutoff) {
				o.reclaim(ctx, inst)
				continue
			}
		}

		if changed {
			if err := o.store.UpdateInstance(ctx, inst); err != nil {
				return nil, fmt.Errorf("update instance %s: %w", inst.ID, err)
			}
		}
		out = append(out, inst)
	}
	return out, nil
}

// cachedTemplate memoizes template lookups across one poll. A missing
// template is cached as nil: auto-delete is skipped for orphaned records
// rather than failing the poll.
func (o *Orchestrator) cachedTemplate(ctx context.Context, cache map[string]*Template, id string) *Template {
	if tpl, ok := cache[id]; ok {
		return tpl
	}
	tpl, err := o.store.Template(ctx, id)
	if err != nil {
		if !fault.IsNotFound(err) {
			o.log.Warn("load template during poll", "template", id, "error", err)
		}
		cache[id] = nil
		return nil
	}
	cache[id] = &tpl
	return &tpl
}

// observeWorkload reads the external phase of a workload and maps it to a
// domain status. Absence is the expected outcome for stopped instances and
// maps to StatusStopped; any other read failure is a transport fault.
func (o *Orchestrator) observeWorkload(ctx context.Context, workloadName string) (Status, error) {
	pod, err := o.client.CoreV1().Pods(o.cfg.Namespace).Get(ctx, workloadName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return StatusStopped, nil
		}
		return StatusUnknown, fmt.Errorf("read workload %s: %w", workloadName, err)
	}
	return MapPhase(pod.Status.Phase), nil
}

// StopInstance gracefully stops an instance's workload. If the workload is
// already terminal or absent, the observed status is recorded as-is
// (idempotent). Otherwise a termination signal is sent into the workload;
// signal delivery is best-effort and the instance is marked Stopped
// regardless of the outcome.
func (o *Orchestrator) StopInstance(ctx context.Context, owner, instanceID string) (Instance, error) {
	inst, err := o.ownedInstance(ctx, owner, instanceID)
	if err != nil {
		return Instance{}, err
	}
	workloadName := WorkloadName(owner, instanceID)

	final := StatusStopped
	status, err := o.observeWorkload(ctx, workloadName)
	if err != nil {
		return Instance{}, err
	}
	switch {
	case status.IsTerminal():
		final = status
	default:
		err := o.exec.Stream(ctx, workloadName, runnerContainerName, stopSignalCommand, kubeexec.Streams{})
		if err != nil && !fault.IsNotFound(err) {
			o.log.Warn("send stop signal", "workload", workloadName, "error", err)
		}
	}

	inst.Status = final
	inst.LastActiveAt = time.Now().UTC()
	if err := o.store.UpdateInstance(ctx, inst); err != nil {
		return Instance{}, fmt.Errorf("update instance %s: %w", inst.ID, err)
	}
	return inst, nil
}

// RestartInstance tears down any existing workload for the instance
// (absence tolerated), invalidates the prior console endpoint, and
// provisions the workload again under the same instance id with a freshly
// published console.
func (o *Orchestrator) RestartInstance(ctx context.Context, owner, instanceID string) (Instance, error) {
	inst, err := o.ownedInstance(ctx, owner, instanceID)
	if err != nil {
		return Instance{}, err
	}
	tpl, img, err := o.loadTemplate(ctx, inst.TemplateID)
	if err != nil {
		return Instance{}, err
	}

	workloadName := WorkloadName(owner, instanceID)
	if err := o.deleteWorkload(ctx, workloadName); err != nil {
		return Instance{}, err
	}
	if err := o.unpublishConsole(ctx, instanceID); err != nil {
		return Instance{}, err
	}

	consoleURL, err := o.provision(ctx, tpl, img, owner, instanceID)
	if err != nil {
		return Instance{}, err
	}

	now := time.Now().UTC()
	inst.Status = StatusPending
	inst.StartedAt = now
	inst.LastActiveAt = now
	inst.ConsoleURL = consoleURL
	if err := o.store.UpdateInstance(ctx, inst); err != nil {
		return Instance{}, fmt.Errorf("update instance %s: %w", inst.ID, err)
	}
	o.log.Info("lab restarted", "instance", instanceID, "owner", owner)
	return inst, nil
}

// DeleteInstance force-removes the instance's workload (absence counts as
// success) and its persisted record. Console service and network policy
// removal are best-effort; a dangling service is harmless once the workload
// is gone.
func (o *Orchestrator) DeleteInstance(ctx context.Context, owner, instanceID string) error {
	inst, err := o.ownedInstance(ctx, owner, instanceID)
	if err != nil {
		return err
	}
	workloadName := WorkloadName(owner, instanceID)

	if err := o.deleteWorkload(ctx, workloadName); err != nil {
		return err
	}
	if err := o.unpublishConsole(ctx, instanceID); err != nil {
		o.log.Warn("delete console service", "instance", instanceID, "error", err)
	}
	if err := o.deleteNetworkPolicy(ctx, workloadName); err != nil {
		o.log.Warn("delete network policy", "workload", workloadName, "error", err)
	}
	if err := o.store.DeleteInstance(ctx, inst.ID); err != nil {
		return fmt.Errorf("remove instance record %s: %w", inst.ID, err)
	}
	o.log.Info("lab deleted", "instance", instanceID, "owner", owner)
	return nil
}

// deleteWorkload force-removes a workload with no grace period. Absence is
// success.
func (o *Orchestrator) deleteWorkload(ctx context.Context, workloadName string) error {
	err := o.client.CoreV1().Pods(o.cfg.Namespace).Delete(ctx, workloadName, metav1.DeleteOptions{
		GracePeriodSeconds: ptrTo(int64(0)),
		PropagationPolicy:  ptrTo(metav1.DeletePropagationForeground),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete workload %s: %w", workloadName, err)
	}
	return nil
}

// deleteNetworkPolicy removes a workload's isolation policy. Absence is
// success: host and unrestricted modes never had one.
func (o *Orchestrator) deleteNetworkPolicy(ctx context.Context, workloadName string) error {
	err := o.client.NetworkingV1().NetworkPolicies(o.cfg.Namespace).
		Delete(ctx, workloadName+"-egress-only", metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete network policy for %s: %w", workloadName, err)
	}
	return nil
}

// reclaim tears down everything belonging to an instance with
// warning-level tolerance on every step. Used by the reaper and the
// auto-delete path, where a single instance's fault must not take down the
// loop or the caller's poll.
func (o *Orchestrator) reclaim(ctx context.Context, inst Instance) {
	workloadName := WorkloadName(inst.Owner, inst.ID)
	log := o.log.With("instance", inst.ID, "workload", workloadName)

	if err := o.deleteWorkload(ctx, workloadName); err != nil {
		log.Warn("reclaim workload", "error", err)
	}
	if err := o.unpublishConsole(ctx, inst.ID); err != nil {
		log.Warn("reclaim console service", "error", err)
	}
	if err := o.deleteNetworkPolicy(ctx, workloadName); err != nil {
		log.Warn("reclaim network policy", "error", err)
	}
	if err := o.store.DeleteInstance(ctx, inst.ID); err != nil {
		log.Warn("remove instance record", "error", err)
	} else {
		log.Info("instance reclaimed")
	}
}

// loadTemplate loads a template and its image, rejecting disabled
// templates.
func (o *Orchestrator) loadTemplate(ctx context.Context, templateID string) (Template, Image, error) {
	tpl, err := o.store.Template(ctx, templateID)
	if err != nil {
		return Template{}, Image{}, fmt.Errorf("load template %s: %w", templateID, err)
	}
	if !tpl.Enabled {
		return Template{}, Image{}, fmt.Errorf("template %s: %w", templateID, ErrTemplateDisabled)
	}
	img, err := o.store.Image(ctx, tpl.ImageID)
	if err != nil {
		return Template{}, Image{}, fmt.Errorf("load image %s: %w", tpl.ImageID, err)
	}
	return tpl, img, nil
}

// ownedInstance loads an instance record and verifies ownership. A record
// owned by someone else is reported as absent rather than forbidden, so
// instance ids do not leak across owners.
func (o *Orchestrator) ownedInstance(ctx context.Context, owner, instanceID string) (Instance, error) {
	inst, err := o.store.Instance(ctx, instanceID)
	if err != nil {
		return Instance{}, fmt.Errorf("load instance %s: %w", instanceID, err)
	}
	if inst.Owner != owner {
		return Instance{}, fmt.Errorf("load instance %s: %w", instanceID, fault.ErrNotFound)
	}
	return inst, nil
}
