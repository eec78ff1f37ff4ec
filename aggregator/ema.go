package aggregator

import "math"

const emaEpsilon = 1e-9

// ema maintains an exponentially-decaying mean and variance baseline for one
// statistic of one window key. The first observed value seeds the mean; until
// then z-scores are zero, so a key can never be flagged anomalous on its
// first observation.
type ema struct {
	alpha  float64
	mean   float64
	vari   float64
	seeded bool
}

func newEMA(alpha float64) *ema {
	return &ema{alpha: alpha, vari: 1e-6}
}

// update rolls the baseline forward with a newly observed value.
func (e *ema) update(x float64) {
	if !e.seeded {
		e.mean = x
		e.seeded = true
		return
	}
	d := x - e.mean
	e.mean += e.alpha * d
	e.vari = (1 - e.alpha) * (e.vari + e.alpha*d*d)
}

// z returns how many standard deviations x lies from the baseline,
// or 0 when no baseline exists yet.
func (e *ema) z(x float64) float64 {
	if !e.seeded {
		return 0
	}
	return (x - e.mean) / math.Sqrt(e.vari+emaEpsilon)
}
