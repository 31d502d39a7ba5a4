package core

import (
	"context"
	"testing"

	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestNetworkModeIsolating(t *testing.T) {
	t.Parallel()

	tests := map[NetworkMode]bool{
		NetworkModeBridge:       true,
		NetworkModeNone:         true,
		NetworkModeIsolated:     true,
		NetworkModeHost:         false,
		NetworkModeUnrestricted: false,
		// Unrecognized modes fail closed.
		NetworkMode("airgapped"): true,
		NetworkMode(""):          true,
	}
	for mode, want := range tests {
		if got := mode.Isolating(); got != want {
			t.Errorf("%q.Isolating() = %v, want %v", mode, got, want)
		}
	}
}

func TestDesiredNetworkPolicy(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mode        NetworkMode
		wantEgress  int // distinct egress ports
		wantDenyAll bool
	}{
		"bridge permits dns and web": {mode: NetworkModeBridge, wantEgress: 4},
		"isolated denies all egress": {mode: NetworkModeIsolated, wantDenyAll: true},
		"none denies all egress":     {mode: NetworkModeNone, wantDenyAll: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			policy := desiredNetworkPolicy("vm-alice-12345678", testNamespace, tc.mode, 6080)

			if policy.Name != "vm-alice-12345678-egress-only" {
				t.Errorf("policy name = %q", policy.Name)
			}
			if policy.Spec.PodSelector.MatchLabels["app"] != "vm-alice-12345678" {
				t.Errorf("pod selector = %v", policy.Spec.PodSelector.MatchLabels)
			}

			if tc.wantDenyAll {
				if len(policy.Spec.Egress) != 0 {
					t.Errorf("egress rules = %d, want none", len(policy.Spec.Egress))
				}
			} else {
				if len(policy.Spec.Egress) != 1 || len(policy.Spec.Egress[0].Ports) != tc.wantEgress {
					t.Fatalf("egress = %+v, want one rule with %d ports", policy.Spec.Egress, tc.wantEgress)
				}
			}

			// The console port must stay reachable in every mode.
			if len(policy.Spec.Ingress) != 1 || len(policy.Spec.Ingress[0].Ports) != 1 {
				t.Fatalf("ingress = %+v, want exactly the console port", policy.Spec.Ingress)
			}
			if got := policy.Spec.Ingress[0].Ports[0].Port.IntValue(); got != 6080 {
				t.Errorf("ingress port = %d, want 6080", got)
			}

			for _, pt := range []networkingv1.PolicyType{networkingv1.PolicyTypeIngress, networkingv1.PolicyTypeEgress} {
				found := false
				for _, have := range policy.Spec.PolicyTypes {
					if have == pt {
						found = true
					}
				}
				if !found {
					t.Errorf("policy type %s missing", pt)
				}
			}
		})
	}
}

func TestApplyNetworkPolicyConvergesOnConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	existing := desiredNetworkPolicy("vm-alice-12345678", testNamespace, NetworkModeIsolated, 6080)
	orch, client, _, _ := newTestOrchestrator(t, testConfig(), existing)

	// Re-applying with a different mode must patch, not fail.
	if err := orch.applyNetworkPolicy(ctx, "vm-alice-12345678", NetworkModeBridge); err != nil {
		t.Fatalf("applyNetworkPolicy() = %v", err)
	}

	got, err := client.NetworkingV1().NetworkPolicies(testNamespace).Get(ctx, existing.Name, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("read policy: %v", err)
	}
	if len(got.Spec.Egress) == 0 {
		t.Error("policy spec not updated to bridge egress rules")
	}
}
