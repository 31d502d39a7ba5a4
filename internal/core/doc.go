// Package core implements the lab orchestration engine: admission control,
// the instance lifecycle state machine, network-isolation policy derivation,
// console endpoint publication, and idle reclamation.
//
// This package is internal. The public API is provided by the root
// bretterlabs package, which re-exports the types and errors needed by
// consumers.
package core
