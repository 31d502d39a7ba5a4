package core

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/csufpsudocromis/bretter-labs/internal/kubeexec"
)

// Orchestrator turns template requests into running, isolated, reclaimable
// VM workloads. It owns instance status: no other component writes it.
//
// The control-plane client, exec transport, and store are injected once at
// construction and shared by every operation; nothing is resolved through
// package-level globals. Safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	client kubernetes.Interface
	exec   kubeexec.Executor
	store  Store

	// owners serializes the admit-then-create window per owner so two
	// concurrent starts cannot both observe "no existing lab".
	owners ownerLocks

	log *slog.Logger
}

// OrchestratorParams holds the collaborators for NewOrchestrator.
// All fields are required.
type OrchestratorParams struct {
	Client kubernetes.Interface
	Exec   kubeexec.Executor
	Store  Store
	Config Config
}

// NewOrchestrator creates an Orchestrator from the given parameters.
// Panics if a collaborator is nil or the config fails validation; these are
// programmer errors that should surface at startup, not at first request.
func NewOrchestrator(params OrchestratorParams) *Orchestrator {
	if params.Client == nil {
		panic("bretterlabs: orchestrator client must not be nil")
	}
	if params.Exec == nil {
		panic("bretterlabs: orchestrator executor must not be nil")
	}
	if params.Store == nil {
		panic("bretterlabs: orchestrator store must not be nil")
	}
	if err := params.Config.Validate(); err != nil {
		panic(fmt.Sprintf("bretterlabs: invalid orchestrator config: %v", err))
	}
	return &Orchestrator{
		cfg:    params.Config,
		client: params.Client,
		exec:   params.Exec,
		store:  params.Store,
		log:    Logger().With("namespace", params.Config.Namespace),
	}
}

// Config returns the orchestrator's immutable configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// ensureNamespace creates the workload namespace if it does not exist yet.
// Called before the first workload submission; repeated calls are cheap
// reads.
func (o *Orchestrator) ensureNamespace(ctx context.Context) error {
	_, err := o.client.CoreV1().Namespaces().Get(ctx, o.cfg.Namespace, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("read namespace %s: %w", o.cfg.Namespace, err)
	}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: o.cfg.Namespace}}
	if _, err := o.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create namespace %s: %w", o.cfg.Namespace, err)
	}
	return nil
}
