package core

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const testInstanceID = "0f4b2c1d-aaaa-bbbb-cccc-000000000000"

func TestPublishConsoleAssignsPort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	orch, client, _, _ := newTestOrchestrator(t, testConfig())

	port, err := orch.publishConsole(ctx, "vm-alice-0f4b2c1d", testInstanceID)
	if err != nil {
		t.Fatalf("publishConsole() = %v", err)
	}
	if port == 0 {
		t.Fatal("expected an assigned port")
	}

	svc, err := client.CoreV1().Services(testNamespace).Get(ctx, "svc-0f4b2c1d", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("read service: %v", err)
	}
	if svc.Spec.Type != corev1.ServiceTypeNodePort {
		t.Errorf("service type = %q, want NodePort", svc.Spec.Type)
	}
	if svc.Spec.Selector["app"] != "vm-alice-0f4b2c1d" {
		t.Errorf("selector = %v", svc.Spec.Selector)
	}
	if got := svc.Spec.Ports[0].Port; got != 6080 {
		t.Errorf("service port = %d, want 6080", got)
	}
}

func TestPublishConsoleReusesExistingPublication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	existing := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "svc-0f4b2c1d", Namespace: testNamespace},
		Spec: corev1.ServiceSpec{
			Type:  corev1.ServiceTypeNodePort,
			Ports: []corev1.ServicePort{{Port: 6080, NodePort: 30999}},
		},
	}
	orch, _, _, _ := newTestOrchestrator(t, testConfig(), existing)

	port, err := orch.publishConsole(ctx, "vm-alice-0f4b2c1d", testInstanceID)
	if err != nil {
		t.Fatalf("publishConsole() = %v", err)
	}
	if port != 30999 {
		t.Errorf("port = %d, want the previously assigned 30999", port)
	}
}

func TestUnpublishConsoleToleratesAbsence(t *testing.T) {
	t.Parallel()

	orch, _, _, _ := newTestOrchestrator(t, testConfig())
	if err := orch.unpublishConsole(context.Background(), testInstanceID); err != nil {
		t.Fatalf("unpublishConsole() on absent service = %v", err)
	}
}

func TestConsoleURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		embedConfigMap string
		title          string
		want           string
	}{
		"stock page without embed ConfigMap": {
			title: "Debian Lab",
			want:  "http://labs.test:30100/spice_auto.html?host=labs.test&port=30100&secure=0&title=Debian+Lab",
		},
		"slim page with embed ConfigMap": {
			embedConfigMap: "spice-embed",
			title:          "Debian Lab",
			want:           "http://labs.test:30100/spice-embed.html?host=labs.test&port=30100&secure=0&title=Debian+Lab",
		},
		"title escaped": {
			title: "C&C Lab #2",
			want:  "http://labs.test:30100/spice_auto.html?host=labs.test&port=30100&secure=0&title=C%26C+Lab+%232",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.EmbedConfigMap = tc.embedConfigMap
			orch, _, _, _ := newTestOrchestrator(t, cfg)

			if got := orch.consoleURL(30100, tc.title); got != tc.want {
				t.Errorf("consoleURL() = %q, want %q", got, tc.want)
			}
		})
	}
}
