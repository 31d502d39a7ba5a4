// Package kubeexec provides command execution inside running workloads over
// the control plane's exec subresource. The Executor interface is the
// boundary the orchestration and ingestion packages depend on; the SPDY
// implementation is the only production transport.
package kubeexec
