package report

import "sort"

// Distribution is the standard four-number summary of a sample.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// DescribeSample computes the distribution of a sample. An empty sample yields zeroes.
func DescribeSample(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	dist := Distribution{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	dist.Mean = sum / float64(len(sorted))
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		dist.Median = sorted[mid]
	} else {
		dist.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return dist
}

// slope fits y = a + b*x by least squares and returns b. Fewer than two points,
// or a degenerate x sample, yield 0.
func slope(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
