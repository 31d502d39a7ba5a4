// Package store provides the SQLite-backed persistence layer for instance,
// template, and image records. It uses the pure-Go driver, so builds stay
// CGO-free. The schema is created on open and the cluster configuration row
// is bootstrapped with defaults, making a fresh database immediately
// usable.
package store
