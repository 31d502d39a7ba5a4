package core

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// NetworkMode selects the isolation posture of a VM workload.
type NetworkMode string

const (
	// NetworkModeBridge restricts egress to DNS and web traffic and ingress
	// to the console port. This is the default lab posture.
	NetworkModeBridge NetworkMode = "bridge"

	// NetworkModeHost runs the workload on the host network with no policy
	// applied. An explicit opt-out of isolation.
	NetworkModeHost NetworkMode = "host"

	// NetworkModeNone denies all egress; ingress still admits the console
	// port so the remote console stays reachable.
	NetworkModeNone NetworkMode = "none"

	// NetworkModeUnrestricted applies no policy at all.
	NetworkModeUnrestricted NetworkMode = "unrestricted"

	// NetworkModeIsolated denies all egress, like NetworkModeNone.
	NetworkModeIsolated NetworkMode = "isolated"
)

// IsValid reports whether m is a recognized NetworkMode value.
func (m NetworkMode) IsValid() bool {
	switch m {
	case NetworkModeBridge, NetworkModeHost, NetworkModeNone, NetworkModeUnrestricted, NetworkModeIsolated:
		return true
	default:
		return false
	}
}

// Isolating reports whether mode m receives a network policy. Host and
// unrestricted modes explicitly opt out; every other mode (including an
// unrecognized one) is isolated, failing closed.
func (m NetworkMode) Isolating() bool {
	switch m {
	case NetworkModeHost, NetworkModeUnrestricted:
		return false
	default:
		return true
	}
}

// denyAllEgress reports whether mode m gets an empty egress rule set.
func (m NetworkMode) denyAllEgress() bool {
	return m == NetworkModeIsolated || m == NetworkModeNone
}

// desiredNetworkPolicy derives the isolation policy for one workload.
// Bridge mode permits egress to DNS (53/TCP, 53/UDP), HTTP (80/TCP), and
// HTTPS (443/TCP); isolated and none deny all egress. Ingress always admits
// the console port: remote access must remain possible even for fully
// isolated labs.
func desiredNetworkPolicy(workloadName, namespace string, mode NetworkMode, consolePort int32) *networkingv1.NetworkPolicy {
	var egress []networkingv1.NetworkPolicyEgressRule
	if !mode.denyAllEgress() {
		egress = []networkingv1.NetworkPolicyEgressRule{{
			Ports: []networkingv1.NetworkPolicyPort{
				{Protocol: ptrTo(corev1.ProtocolTCP), Port: ptrTo(intstr.FromInt32(53))},
				{Protocol: ptrTo(corev1.ProtocolUDP), Port: ptrTo(intstr.FromInt32(53))},
				{Protocol: ptrTo(corev1.ProtocolTCP), Port: ptrTo(intstr.FromInt32(80))},
				{Protocol: ptrTo(corev1.ProtocolTCP), Port: ptrTo(intstr.FromInt32(443))},
			},
		}}
	}
	ingress := []networkingv1.NetworkPolicyIngressRule{{
		Ports: []networkingv1.NetworkPolicyPort{
			{Protocol: ptrTo(corev1.ProtocolTCP), Port: ptrTo(intstr.FromInt32(consolePort))},
		},
	}}

	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      workloadName + "-egress-only",
			Namespace: namespace,
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{
				MatchLabels: map[string]string{"app": workloadName},
			},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: ingress,
			Egress:  egress,
		},
	}
}

// applyNetworkPolicy idempotently installs the isolation policy for a
// workload. Creation is attempted first; on a conflict the existing policy's
// rule set is patched in place, so re-applying after a restart converges
// instead of failing.
func (o *Orchestrator) applyNetworkPolicy(ctx context.Context, workloadName string, mode NetworkMode) error {
	policy := desiredNetworkPolicy(workloadName, o.cfg.Namespace, mode, o.cfg.ConsolePort)

	_, err := o.client.NetworkingV1().NetworkPolicies(o.cfg.Namespace).Create(ctx, policy, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create network policy %s: %w", policy.Name, err)
	}

	patch, err := json.Marshal(map[string]any{"spec": policy.Spec})
	if err != nil {
		return fmt.Errorf("marshal network policy patch: %w", err)
	}
	_, err = o.client.NetworkingV1().NetworkPolicies(o.cfg.Namespace).
		Patch(ctx, policy.Name, types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch network policy %s: %w", policy.Name, err)
	}
	return nil
}
