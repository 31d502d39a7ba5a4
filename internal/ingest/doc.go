// Package ingest moves disk images from the operator's machine onto the
// cluster's shared image volume. There is no direct write path to that
// volume, so the transfer runs through a short-lived helper workload that
// mounts the volume read-write and receives the image in fixed-size,
// block-aligned chunks over the exec transport. Chunks land at absolute
// offsets, which makes any chunk safe to re-send after an interruption.
//
// After transfer the image can be validated and optionally converted to raw
// format in a second helper that carries the runtime's image tooling.
package ingest
