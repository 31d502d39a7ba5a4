package core

import (
	"context"
	"fmt"
	"net/url"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Console embed pages served by the runner's websocket proxy. The slim embed
// page is only present when the embed ConfigMap is mounted; otherwise the
// stock auto-connect page is used.
const (
	embedPageSlim  = "spice-embed.html"
	embedPageStock = "spice_auto.html"
)

// publishConsole exposes a workload's fixed internal console port through a
// cluster-assigned external port and returns that port. If a publication
// already exists for the instance, its previously assigned port is reused
// instead of creating a duplicate.
func (o *Orchestrator) publishConsole(ctx context.Context, workloadName, instanceID string) (int32, error) {
	name := ServiceName(instanceID)
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: o.cfg.Namespace,
			Labels:    map[string]string{"app": workloadName},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": workloadName},
			Type:     corev1.ServiceTypeNodePort,
			Ports: []corev1.ServicePort{{
				Port:       o.cfg.ConsolePort,
				TargetPort: intstr.FromInt32(o.cfg.ConsolePort),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}

	created, err := o.client.CoreV1().Services(o.cfg.Namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err == nil {
		return assignedPort(created)
	}
	if !apierrors.IsAlreadyExists(err) {
		return 0, fmt.Errorf("create console service %s: %w", name, err)
	}

	existing, err := o.client.CoreV1().Services(o.cfg.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("read existing console service %s: %w", name, err)
	}
	return assignedPort(existing)
}

// unpublishConsole removes an instance's console service. Absence is
// success: restart and delete paths call this unconditionally.
func (o *Orchestrator) unpublishConsole(ctx context.Context, instanceID string) error {
	name := ServiceName(instanceID)
	err := o.client.CoreV1().Services(o.cfg.Namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete console service %s: %w", name, err)
	}
	return nil
}

// assignedPort extracts the cluster-assigned external port from a console
// service.
func assignedPort(svc *corev1.Service) (int32, error) {
	if len(svc.Spec.Ports) == 0 || svc.Spec.Ports[0].NodePort == 0 {
		return 0, fmt.Errorf("console service %s has no assigned port", svc.Name)
	}
	return svc.Spec.Ports[0].NodePort, nil
}

// consoleURL templates the browser-reachable console endpoint for an
// instance. The title is URL-encoded and shown by the embed page; secure=0
// because TLS terminates outside the lab network.
func (o *Orchestrator) consoleURL(port int32, title string) string {
	page := embedPageStock
	if o.cfg.EmbedConfigMap != "" {
		page = embedPageSlim
	}
	return fmt.Sprintf(
		"http://%s:%d/%s?host=%s&port=%d&secure=0&title=%s",
		o.cfg.ExternalHost, port, page, o.cfg.ExternalHost, port, url.QueryEscape(title),
	)
}
