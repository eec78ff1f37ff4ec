// Package router consumes the Diagnostic stream and durably partitions it
// by severity into two rotating file tracks.
//
// Classification is a pure predicate over one Diagnostic and the configured
// thresholds. Each track (malicious, normal) is owned by a single goroutine
// holding its file state, so a rotation boundary can never interleave with
// an append on the same track, and the two tracks proceed independently.
package router
