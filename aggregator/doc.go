// Package aggregator turns the unbounded telemetry stream into fixed-window
// Diagnostic emissions.
//
// Each (region, asn, method) key owns an independent statistical window:
// a bounded latency reservoir plus error counters, and EMA mean/variance
// baselines carried across ticks for z-scoring. On every tick the aggregator
// snapshots and resets each active window under a short per-key critical
// section, then computes percentiles and z-scores and publishes outside the
// lock so ingestion is never blocked by a slow tick.
package aggregator
