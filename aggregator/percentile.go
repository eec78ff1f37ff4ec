package aggregator

import "sort"

// percentile computes the p-th percentile (0..100) of samples using linear
// interpolation between closest ranks. samples may arrive unsorted and is
// sorted in place.
func percentile(samples []float64, p float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sort.Float64s(samples)
	if n == 1 {
		return samples[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return samples[n-1]
	}
	frac := rank - float64(lo)
	return samples[lo] + frac*(samples[lo+1]-samples[lo])
}
