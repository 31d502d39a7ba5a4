package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/csufpsudocromis/bretter-labs/internal/fault"
	"github.com/csufpsudocromis/bretter-labs/internal/kubeexec"
)

const testNamespace = "labs-test"

func testConfig() Config {
	return Config{
		Namespace:          testNamespace,
		RunnerImage:        "vm-runner:test",
		ImagePVC:           "vm-images",
		ExternalHost:       "labs.test",
		ConsolePort:        6080,
		MemoryHeadroomMB:   2048,
		ReaperInterval:     time.Minute,
		DefaultIdleTimeout: 30 * time.Minute,
	}
}

// fakeStore is an in-memory Store for orchestrator tests.
type fakeStore struct {
	mu        sync.Mutex
	instances map[string]Instance
	templates map[string]Template
	images    map[string]Image
	cluster   ClusterConfig
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		instances: map[string]Instance{},
		templates: map[string]Template{},
		images:    map[string]Image{},
		cluster:   ClusterConfig{MaxConcurrentVMs: 50, PerUserVMLimit: 2, IdleTimeoutMinutes: 30},
	}
}

func (s *fakeStore) Instance(_ context.Context, id string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return Instance{}, fmt.Errorf("instance %s: %w", id, fault.ErrNotFound)
	}
	return inst, nil
}

func (s *fakeStore) InstancesByOwner(_ context.Context, owner string) ([]Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Instance{}
	for _, inst := range s.instances {
		if inst.Owner == owner {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *fakeStore) InstancesByStatus(_ context.Context, status Status) ([]Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Instance{}
	for _, inst := range s.instances {
		if inst.Status == status {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateInstance(_ context.Context, inst Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; ok {
		return fmt.Errorf("instance %s already exists", inst.ID)
	}
	s.instances[inst.ID] = inst
	return nil
}

func (s *fakeStore) UpdateInstance(_ context.Context, inst Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; !ok {
		return fmt.Errorf("instance %s: %w", inst.ID, fault.ErrNotFound)
	}
	s.instances[inst.ID] = inst
	return nil
}

func (s *fakeStore) DeleteInstance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	return nil
}

func (s *fakeStore) Template(_ context.Context, id string) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("template %s: %w", id, fault.ErrNotFound)
	}
	return tpl, nil
}

func (s *fakeStore) Image(_ context.Context, id string) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return Image{}, fmt.Errorf("image %s: %w", id, fault.ErrNotFound)
	}
	return img, nil
}

func (s *fakeStore) ClusterConfig(_ context.Context) (ClusterConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cluster, nil
}

// fakeExec records exec invocations instead of reaching a cluster.
type fakeExec struct {
	mu    sync.Mutex
	err   error
	calls []fakeExecCall
}

type fakeExecCall struct {
	pod       string
	container string
	command   []string
}

func (f *fakeExec) Stream(_ context.Context, pod, container string, command []string, _ kubeexec.Streams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeExecCall{pod: pod, container: container, command: command})
	return f.err
}

func (f *fakeExec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// newTestOrchestrator wires an Orchestrator against a fake clientset that
// assigns NodePorts on service creation, the way a real control plane does.
func newTestOrchestrator(t *testing.T, cfg Config, objects ...runtime.Object) (*Orchestrator, *fake.Clientset, *fakeStore, *fakeExec) {
	t.Helper()

	client := fake.NewClientset(objects...)
	nextPort := int32(30080)
	client.PrependReactor("create", "services", func(action k8stesting.Action) (bool, runtime.Object, error) {
		svc := action.(k8stesting.CreateAction).GetObject().(*corev1.Service)
		if len(svc.Spec.Ports) > 0 && svc.Spec.Ports[0].NodePort == 0 {
			svc.Spec.Ports[0].NodePort = nextPort
			nextPort++
		}
		return false, nil, nil
	})

	st := newFakeStore()
	exec := &fakeExec{}
	orch := NewOrchestrator(OrchestratorParams{
		Client: client,
		Exec:   exec,
		Store:  st,
		Config: cfg,
	})
	return orch, client, st, exec
}

// seedTemplate registers a template and its image in the fake store and
// returns the template.
func seedTemplate(st *fakeStore, mode NetworkMode) Template {
	img := Image{ID: "img-1", Name: "debian", Filename: "debian-12.qcow2"}
	tpl := Template{
		ID:          "tpl-1",
		Name:        "Debian Lab",
		OSType:      "linux",
		ImageID:     img.ID,
		CPUCores:    2,
		RAMMB:       4096,
		NetworkMode: mode,
		Enabled:     true,
	}
	st.images[img.ID] = img
	st.templates[tpl.ID] = tpl
	return tpl
}
