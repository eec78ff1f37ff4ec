package router

import "github.com/flyingMooncake/SentinelKarma-sub000/telemetry"

// Outcome is the result of classifying one Diagnostic.
type Outcome int

const (
	// Normal traffic, archived on the slow-rotating track.
	Normal Outcome = iota
	// Malicious traffic, archived on the fast-rotating evidence track.
	Malicious
)

// String returns the track name for the outcome.
func (o Outcome) String() string {
	if o == Malicious {
		return "malicious"
	}
	return "normal"
}

// Thresholds configure the classification predicate.
type Thresholds struct {
	// ErrRate flags windows whose error rate reaches this fraction.
	ErrRate float64 `yaml:"err_thr"`
	// P95 flags windows whose 95th-percentile latency reaches this (ms).
	P95 float64 `yaml:"p95_thr"`
	// ZLat and ZErr flag windows this many standard deviations above the
	// series baselines.
	ZLat float64 `yaml:"zlat_thr"`
	ZErr float64 `yaml:"zerr_thr"`
}

// DefaultThresholds returns the deployed defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{ErrRate: 0.05, P95: 250, ZLat: 4.0, ZErr: 2.0}
}

// Classify evaluates the predicate: any threshold reached means Malicious.
// Pure function of its inputs; identical inputs always yield identical
// outcomes.
func Classify(d *telemetry.Diagnostic, thr Thresholds) Outcome {
	if d.Metrics.ErrRate >= thr.ErrRate ||
		d.Metrics.P95 >= thr.P95 ||
		d.Z.Lat >= thr.ZLat ||
		d.Z.Err >= thr.ZErr {
		return Malicious
	}
	return Normal
}
