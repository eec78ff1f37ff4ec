package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flyingMooncake/SentinelKarma-sub000/telemetry"
)

func diag(p95, errRate, zLat, zErr float64) *telemetry.Diagnostic {
	return &telemetry.Diagnostic{
		Ts:       1754042400,
		WindowMS: 250,
		Region:   "eu-west",
		ASN:      64512,
		Method:   "eth_call",
		Metrics:  telemetry.DiagnosticMetrics{P95: p95, ErrRate: errRate, Count: 50},
		Z:        telemetry.DiagnosticZ{Lat: zLat, Err: zErr},
	}
}

func TestClassify(t *testing.T) {
	thr := DefaultThresholds()

	cases := []struct {
		name string
		d    *telemetry.Diagnostic
		want Outcome
	}{
		{"all quiet", diag(100, 0.01, 1.0, 0.5), Normal},
		{"error rate at threshold", diag(100, 0.05, 0, 0), Malicious},
		{"error burst", diag(100, 0.40, 0, 0), Malicious},
		{"p95 at threshold", diag(250, 0, 0, 0), Malicious},
		{"latency z spike", diag(100, 0, 4.0, 0), Malicious},
		{"error z spike", diag(100, 0, 0, 2.0), Malicious},
		{"just under every threshold", diag(249.9, 0.049, 3.9, 1.9), Normal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.d, thr))
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	thr := DefaultThresholds()
	d := diag(300, 0.5, 5, 3)
	first := Classify(d, thr)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(d, thr))
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "malicious", Malicious.String())
	assert.Equal(t, "normal", Normal.String())
}
