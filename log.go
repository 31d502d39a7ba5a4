package bretterlabs

import (
	"log/slog"

	"github.com/csufpsudocromis/bretter-labs/internal/core"
)

// SetLogger replaces the package-level logger used by bretterlabs.
// This allows applications to integrate bretterlabs logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; bretterlabs will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next use and then cached. Call
// SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// SetLogger is safe to call concurrently with other bretterlabs operations;
// the logger is stored atomically. For a strict happens-before guarantee,
// call SetLogger before constructing a Manager.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
