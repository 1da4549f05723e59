// Package stats implements the statistical primitives used by the analytics
// kernel: descriptive statistics, ordinary least squares regression, and
// Welch's t-test with a normal-approximation p-value.
//
// Descriptive standard deviation and variance divide by N (population form).
// Welch's t-test divides by N-1 (sample form) internally. The two are not
// interchangeable.
package stats

import (
	"errors"
	"math"
)

// ErrDegenerateInput is returned by LinearRegression when the input cannot
// support a fit (fewer than two points, or zero variance in x).
var ErrDegenerateInput = errors.New("stats: degenerate regression input")

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around the given mean.
// Returns 0 for an empty slice.
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// SampleVariance returns the sample variance (N-1 divisor) around the given
// mean. Returns 0 when fewer than two values are supplied.
func SampleVariance(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values)-1)
}

// CoefficientOfVariation returns stddev/mean for the values, or 0 when the
// mean is zero or negative.
func CoefficientOfVariation(values []float64) float64 {
	m := Mean(values)
	if m <= 0 {
		return 0
	}
	return StdDev(values, m) / m
}

// LinearRegression fits y = slope*x + intercept by ordinary least squares
// and returns the fit together with the coefficient of determination.
func LinearRegression(xs, ys []float64) (slope, intercept, r2 float64, err error) {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0, 0, 0, ErrDegenerateInput
	}

	meanX := Mean(xs)
	meanY := Mean(ys)

	var sxy, sxx float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		sxy += dx * (ys[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, 0, 0, ErrDegenerateInput
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		fitted := slope*xs[i] + intercept
		ssRes += (ys[i] - fitted) * (ys[i] - fitted)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	if ssTot == 0 {
		// Flat series: the fit explains nothing because there is nothing
		// to explain.
		return slope, intercept, 0, nil
	}
	return slope, intercept, 1 - ssRes/ssTot, nil
}

// WelchTTest compares the means of two independent samples with unequal
// variances and returns the t statistic and a two-tailed p-value.
//
// The p-value uses the standard normal distribution rather than the exact
// Student t distribution. For the sample sizes seen in trend analysis the
// difference is negligible, and it keeps the implementation dependency-free.
// The p-value is clamped to [0.0001, 1.0].
func WelchTTest(a, b []float64) (t, p float64) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 1
	}

	meanA := Mean(a)
	meanB := Mean(b)
	varA := SampleVariance(a, meanA)
	varB := SampleVariance(b, meanB)

	stderr := math.Sqrt(varA/float64(len(a)) + varB/float64(len(b)))
	if stderr == 0 {
		return 0, 1
	}

	t = (meanA - meanB) / stderr
	p = 2 * (1 - NormalCDF(math.Abs(t)))
	if p < 0.0001 {
		p = 0.0001
	}
	if p > 1 {
		p = 1
	}
	return t, p
}

// NormalCDF returns Φ(x) for the standard normal distribution using the
// Abramowitz & Stegun 7.1.26 polynomial approximation of erf (max absolute
// error ~1.5e-7).
func NormalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	z := x / math.Sqrt2
	sign := 1.0
	if z < 0 {
		sign = -1.0
		z = -z
	}

	t := 1.0 / (1.0 + p*z)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-z*z)

	return 0.5 * (1.0 + sign*y)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
