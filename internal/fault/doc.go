// Package fault defines the error taxonomy shared by the orchestration
// packages: const sentinel errors, the typed admission rejection, and the
// classification of "expected absence" (not found) versus unexpected
// control-plane faults.
package fault
