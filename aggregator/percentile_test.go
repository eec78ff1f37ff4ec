package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 95))
	assert.Equal(t, 7.0, percentile([]float64{7}, 95))

	samples := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	assert.InDelta(t, 95.5, percentile(samples, 95), 1e-9)
	assert.InDelta(t, 55.0, percentile(samples, 50), 1e-9)
	assert.Equal(t, 100.0, percentile(samples, 100))
	assert.Equal(t, 10.0, percentile(samples, 0))
}

func TestPercentileHandlesUnsortedInput(t *testing.T) {
	assert.InDelta(t, 55.0, percentile([]float64{90, 10, 50, 30, 70, 20, 100, 40, 80, 60}, 50), 1e-9)
}

func TestPercentileMonotonicInP(t *testing.T) {
	samples := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7}
	prev := percentile(samples, 0)
	for p := 5.0; p <= 100; p += 5 {
		cur := percentile(samples, p)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestPercentileMonotonicInLargestSample(t *testing.T) {
	// Growing the slowest request with everything else fixed must never
	// lower the reported tail latency.
	base := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90}
	prev := 0.0
	for _, max := range []float64{100, 150, 200, 400, 1000, 5000} {
		samples := append(append([]float64(nil), base...), max)
		cur := percentile(samples, 95)
		assert.GreaterOrEqual(t, cur, prev, "p95 with max sample %v", max)
		prev = cur
	}
}

func TestEMABaseline(t *testing.T) {
	e := newEMA(0.15)
	assert.Zero(t, e.z(100), "unseeded baseline never flags")

	e.update(20)
	assert.InDelta(t, 20, e.mean, 1e-9)

	// A value right on the baseline is not anomalous.
	assert.InDelta(t, 0, e.z(20), 1e-3)

	for i := 0; i < 50; i++ {
		e.update(20)
	}
	assert.Greater(t, e.z(400), 4.0, "large excursion over a stable baseline")
}
