// Package finance holds the series arithmetic behind the valuation helpers.
// Series are ordered oldest first unless stated otherwise.
package finance

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptySeries      = errors.New("empty series")
	ErrShortSeries      = errors.New("series needs at least two points")
	ErrMisalignedSeries = errors.New("misaligned series")
	ErrZeroDivisor      = errors.New("zero divisor")
	ErrTooLong          = errors.New("projection too long")
)

// MaxProjection bounds how many periods a projection may add. The loops run
// in Go, out of reach of the interpreter's interrupt.
const MaxProjection = 1000

func ToK(v float64) float64 {
	return v / 1_000
}

func ToM(v float64) float64 {
	return v / 1_000_000
}

// Percent converts a percentage into a fraction, 7.5 -> 0.075
func Percent(v float64) float64 {
	return v / 100
}

// CeilCents rounds up to two decimal places
func CeilCents(v float64) float64 {
	return math.Ceil(v*100) / 100
}

// LinearRegression fits a least squares line through values at x = 1..n,
// multiplies its slope by slopeFactor and returns the fitted values for
// x = 1..n+years.
func LinearRegression(values []float64, years int, slopeFactor float64) ([]float64, error) {
	n := len(values)
	switch {
	case n == 0:
		return nil, ErrEmptySeries
	case n < 2:
		return nil, ErrShortSeries
	case years < 0:
		return nil, fmt.Errorf("negative projection length %d", years)
	case years > MaxProjection:
		return nil, fmt.Errorf("%w: %d years, at most %d", ErrTooLong, years, MaxProjection)
	}

	var xSum, ySum, xxSum, xySum float64
	for i, y := range values {
		x := float64(i + 1)
		xSum += x
		ySum += y
		xxSum += x * x
		xySum += x * y
	}

	count := float64(n)
	slope := slopeFactor * (count*xySum - xSum*ySum) / (count*xxSum - xSum*xSum)
	intercept := ySum/count - slope*xSum/count

	fitted := make([]float64, 0, n+years)
	for i := 0; i < n+years; i++ {
		fitted = append(fitted, float64(i+1)*slope+intercept)
	}

	return fitted, nil
}

// Growth compounds last at rate for length periods: last*(1+rate)^i, i = 1..length
func Growth(last float64, length int, rate float64) ([]float64, error) {
	if length > MaxProjection {
		return nil, fmt.Errorf("%w: %d periods, at most %d", ErrTooLong, length, MaxProjection)
	}
	if length < 0 {
		length = 0
	}

	list := make([]float64, 0, length)
	for i := 1; i <= length; i++ {
		list = append(list, last*math.Pow(1+rate, float64(i)))
	}
	return list, nil
}

// ApplyMargin multiplies every element in place and returns the same slice
func ApplyMargin(list []float64, margin float64) []float64 {
	for i := range list {
		list[i] *= margin
	}
	return list
}

// AverageGrowthRate is the mean period over period growth. Periods starting
// from zero contribute nothing but still count towards the mean.
func AverageGrowthRate(values []float64) (float64, error) {
	switch len(values) {
	case 0:
		return 0, ErrEmptySeries
	case 1:
		return 0, ErrShortSeries
	}

	var rate float64
	for i := 1; i < len(values); i++ {
		if base := values[i-1]; base != 0 {
			rate += (values[i] - base) / base
		}
	}

	return rate / float64(len(values)-1), nil
}

// AverageMargin is the mean of numerators[i]/denominators[i]
func AverageMargin(numerators, denominators []float64) (float64, error) {
	if len(numerators) == 0 {
		return 0, ErrEmptySeries
	}
	if len(numerators) != len(denominators) {
		return 0, fmt.Errorf("%w: %d numerators for %d denominators", ErrMisalignedSeries, len(numerators), len(denominators))
	}

	var margin float64
	for i, num := range numerators {
		if denominators[i] == 0 {
			return 0, fmt.Errorf("%w at period %d", ErrZeroDivisor, i)
		}
		margin += num / denominators[i]
	}

	return margin / float64(len(numerators)), nil
}
