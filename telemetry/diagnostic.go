package telemetry

import (
	"encoding/json"
	"fmt"
)

// DiagnosticMetrics holds the windowed statistics of one (region, asn,
// method) series.
type DiagnosticMetrics struct {
	P95     float64 `json:"p95"`
	ErrRate float64 `json:"err_rate"`
	Count   int     `json:"count"`
}

// DiagnosticZ holds the z-scores of the window against the series' rolling
// EMA baselines. Both are zero on a key's first-ever emission.
type DiagnosticZ struct {
	Lat float64 `json:"lat"`
	Err float64 `json:"err"`
}

// Diagnostic is the unit of transport on the broker: one summary per active
// key per tick, serialized as a flat JSON object. Immutable once emitted.
type Diagnostic struct {
	Ts       int64             `json:"ts"`
	WindowMS int               `json:"window_ms"`
	Region   string            `json:"region"`
	ASN      int               `json:"asn"`
	Method   string            `json:"method"`
	Metrics  DiagnosticMetrics `json:"metrics"`
	Z        DiagnosticZ       `json:"z"`
	Sample   string            `json:"sample,omitempty"`
}

// Encode serializes the Diagnostic for the broker and for rotated files.
func (d *Diagnostic) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDiagnostic parses a broker payload, enforcing the required fields.
// Payloads without a method or window are not Diagnostics and are rejected
// before classification.
func DecodeDiagnostic(payload []byte) (*Diagnostic, error) {
	var d Diagnostic
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decoding diagnostic: %w", err)
	}
	if d.Method == "" {
		return nil, fmt.Errorf("diagnostic missing method")
	}
	if d.WindowMS <= 0 {
		return nil, fmt.Errorf("diagnostic window_ms %d invalid", d.WindowMS)
	}
	if d.Metrics.Count < 0 || d.Metrics.ErrRate < 0 || d.Metrics.ErrRate > 1 {
		return nil, fmt.Errorf("diagnostic metrics out of range")
	}
	return &d, nil
}
