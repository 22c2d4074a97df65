package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaling(t *testing.T) {
	assert.Equal(t, 2.5, ToK(2500))
	assert.Equal(t, 3.0, ToM(3_000_000))
	assert.InDelta(t, 0.075, Percent(CeilCents(7.5)), 1e-12)
	assert.Equal(t, 1.24, CeilCents(1.231))
	assert.Equal(t, 1.23, CeilCents(1.23))
}

func TestLinearRegression(t *testing.T) {
	// y = 2x + 1
	fitted, err := LinearRegression([]float64{3, 5, 7}, 2, 1)
	require.NoError(t, err)
	require.Len(t, fitted, 5)

	for i, want := range []float64{3, 5, 7, 9, 11} {
		assert.InDelta(t, want, fitted[i], 1e-9)
	}

	// halving the slope pivots the line around the mean
	fitted, err = LinearRegression([]float64{3, 5, 7}, 0, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 4, fitted[0], 1e-9)
	assert.InDelta(t, 6, fitted[2], 1e-9)
}

func TestLinearRegressionErrors(t *testing.T) {
	_, err := LinearRegression(nil, 3, 1)
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = LinearRegression([]float64{1}, 3, 1)
	assert.ErrorIs(t, err, ErrShortSeries)

	_, err = LinearRegression([]float64{1, 2}, -1, 1)
	assert.Error(t, err)
}

func TestGrowth(t *testing.T) {
	list, err := Growth(100, 3, 0.1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.InDelta(t, 110, list[0], 1e-9)
	assert.InDelta(t, 121, list[1], 1e-9)
	assert.InDelta(t, 133.1, list[2], 1e-9)

	for _, length := range []int{0, -2} {
		list, err := Growth(100, length, 0.1)
		require.NoError(t, err)
		assert.Empty(t, list)
	}
}

func TestProjectionLimit(t *testing.T) {
	list, err := Growth(100, MaxProjection, 0.01)
	require.NoError(t, err)
	assert.Len(t, list, MaxProjection)

	_, err = Growth(100, MaxProjection+1, 0.01)
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = Growth(100, 60_000_000, 0.01)
	assert.ErrorIs(t, err, ErrTooLong)

	fitted, err := LinearRegression([]float64{1, 2}, MaxProjection, 1)
	require.NoError(t, err)
	assert.Len(t, fitted, MaxProjection+2)

	_, err = LinearRegression([]float64{1, 2}, MaxProjection+1, 1)
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestApplyMarginInPlace(t *testing.T) {
	list := []float64{10, 20}
	out := ApplyMargin(list, 0.5)

	assert.Equal(t, []float64{5, 10}, out)
	assert.Equal(t, []float64{5, 10}, list)
}

func TestAverageGrowthRate(t *testing.T) {
	rate, err := AverageGrowthRate([]float64{100, 110, 121})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rate, 1e-9)

	// the period starting at zero is skipped but counted
	rate, err = AverageGrowthRate([]float64{0, 100, 150})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, rate, 1e-9)

	_, err = AverageGrowthRate(nil)
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = AverageGrowthRate([]float64{1})
	assert.ErrorIs(t, err, ErrShortSeries)
}

func TestAverageMargin(t *testing.T) {
	margin, err := AverageMargin([]float64{10, 30}, []float64{100, 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, margin, 1e-9)

	_, err = AverageMargin(nil, nil)
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = AverageMargin([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrMisalignedSeries)

	_, err = AverageMargin([]float64{1, 2}, []float64{1, 0})
	assert.ErrorIs(t, err, ErrZeroDivisor)
}
