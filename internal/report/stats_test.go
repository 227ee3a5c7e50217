package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeSample(t *testing.T) {
	dist := DescribeSample([]float64{4, 1, 3, 2})
	assert.InDelta(t, 2.5, dist.Mean, 1e-9)
	assert.InDelta(t, 2.5, dist.Median, 1e-9)
	assert.Equal(t, 1.0, dist.Min)
	assert.Equal(t, 4.0, dist.Max)

	odd := DescribeSample([]float64{5, 1, 3})
	assert.InDelta(t, 3.0, odd.Median, 1e-9)
}

func TestDescribeSampleEmpty(t *testing.T) {
	assert.Equal(t, Distribution{}, DescribeSample(nil))
}

func TestDescribeSampleDoesNotMutate(t *testing.T) {
	values := []float64{3, 1, 2}
	DescribeSample(values)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestSlope(t *testing.T) {
	// y = 2x + 1
	xs := []float64{0, 1, 2, 3}
	ys := []float64{1, 3, 5, 7}
	assert.InDelta(t, 2.0, slope(xs, ys), 1e-9)

	flat := []float64{4, 4, 4, 4}
	assert.InDelta(t, 0.0, slope(xs, flat), 1e-9)
}

func TestSlopeDegenerate(t *testing.T) {
	assert.Zero(t, slope(nil, nil))
	assert.Zero(t, slope([]float64{1}, []float64{2}))
	assert.Zero(t, slope([]float64{1, 2}, []float64{2}))
	assert.Zero(t, slope([]float64{2, 2}, []float64{1, 5}))
}
