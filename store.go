package bretterlabs

import "github.com/csufpsudocromis/bretter-labs/internal/store"

// SQLiteStore is the bundled SQLite-backed Store implementation. Beyond the
// Store interface it carries the administrative operations (SaveTemplate,
// SaveImage, DeleteImage, SetClusterConfig) that the routing layer needs and
// a Manager does not.
type SQLiteStore = store.Store

// OpenStore opens (creating if needed) the bundled SQLite store at path,
// applies the schema, and bootstraps the cluster configuration row with
// defaults if absent. Close it when done.
func OpenStore(path string) (*SQLiteStore, error) {
	return store.Open(path)
}
