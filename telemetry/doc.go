// Package telemetry defines the record types flowing through the pipeline:
// raw RPC log lines, validated telemetry events, and the per-window
// Diagnostic emitted by the aggregator and carried on the broker.
package telemetry
