package stats

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{100, 200, 150, 180, 120}

	mean := Mean(values)
	if !almostEqual(mean, 150, 1e-9) {
		t.Errorf("Mean = %v, want 150", mean)
	}

	// Population stddev: sqrt(((-50)^2+50^2+0+30^2+(-30)^2)/5) = sqrt(1360).
	sd := StdDev(values, mean)
	if !almostEqual(sd, math.Sqrt(1360), 1e-9) {
		t.Errorf("StdDev = %v, want %v", sd, math.Sqrt(1360))
	}
	t.Logf("mean=%.2f stddev=%.4f", mean, sd)
}

func TestMeanEmpty(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := StdDev(nil, 0); got != 0 {
		t.Errorf("StdDev(nil) = %v, want 0", got)
	}
}

func TestSampleVarianceUsesNMinusOne(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	mean := Mean(values)

	// Sum of squared deviations is 10; sample variance = 10/4.
	if got := SampleVariance(values, mean); !almostEqual(got, 2.5, 1e-9) {
		t.Errorf("SampleVariance = %v, want 2.5", got)
	}

	// Population variance differs: stddev^2 = 10/5.
	sd := StdDev(values, mean)
	if !almostEqual(sd*sd, 2.0, 1e-9) {
		t.Errorf("population variance = %v, want 2.0", sd*sd)
	}

	if got := SampleVariance([]float64{42}, 42); got != 0 {
		t.Errorf("SampleVariance single value = %v, want 0", got)
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	// Identical values: CV = 0.
	if got := CoefficientOfVariation([]float64{5, 5, 5}); got != 0 {
		t.Errorf("CV of constant series = %v, want 0", got)
	}
	// Non-positive mean guards to 0.
	if got := CoefficientOfVariation([]float64{-1, -2, -3}); got != 0 {
		t.Errorf("CV with negative mean = %v, want 0", got)
	}
	if got := CoefficientOfVariation([]float64{0, 0}); got != 0 {
		t.Errorf("CV with zero mean = %v, want 0", got)
	}

	got := CoefficientOfVariation([]float64{90, 100, 110})
	want := StdDev([]float64{90, 100, 110}, 100) / 100
	if !almostEqual(got, want, 1e-9) {
		t.Errorf("CV = %v, want %v", got, want)
	}
}

func TestLinearRegressionPerfectLine(t *testing.T) {
	// y = 2x + 5
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{5, 7, 9, 11, 13}

	slope, intercept, r2, err := LinearRegression(xs, ys)
	if err != nil {
		t.Fatalf("LinearRegression: %v", err)
	}
	if !almostEqual(slope, 2, 1e-9) {
		t.Errorf("slope = %v, want 2", slope)
	}
	if !almostEqual(intercept, 5, 1e-9) {
		t.Errorf("intercept = %v, want 5", intercept)
	}
	if !almostEqual(r2, 1, 1e-9) {
		t.Errorf("r2 = %v, want 1", r2)
	}
}

func TestLinearRegressionDegenerate(t *testing.T) {
	if _, _, _, err := LinearRegression([]float64{1}, []float64{2}); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("single point: err = %v, want ErrDegenerateInput", err)
	}
	// All x identical: zero variance in x.
	if _, _, _, err := LinearRegression([]float64{3, 3, 3}, []float64{1, 2, 3}); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("constant x: err = %v, want ErrDegenerateInput", err)
	}
	if _, _, _, err := LinearRegression([]float64{1, 2}, []float64{1}); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("length mismatch: err = %v, want ErrDegenerateInput", err)
	}
}

func TestLinearRegressionFlatSeries(t *testing.T) {
	slope, _, r2, err := LinearRegression([]float64{0, 1, 2, 3}, []float64{10, 10, 10, 10})
	if err != nil {
		t.Fatalf("LinearRegression: %v", err)
	}
	if slope != 0 {
		t.Errorf("slope = %v, want 0", slope)
	}
	if r2 != 0 {
		t.Errorf("r2 = %v, want 0 for flat series", r2)
	}
}

func TestWelchTTestIdenticalSamples(t *testing.T) {
	a := []float64{10, 12, 11, 13, 12}
	tStat, p := WelchTTest(a, a)
	if tStat != 0 {
		t.Errorf("t = %v, want 0 for identical samples", tStat)
	}
	// The erf polynomial is only accurate to ~1.5e-7, so p lands just
	// shy of 1 for t = 0.
	if !almostEqual(p, 1, 1e-6) {
		t.Errorf("p = %v, want 1 for identical samples", p)
	}
}

func TestWelchTTestClearSeparation(t *testing.T) {
	a := []float64{100, 101, 99, 100, 102, 98, 100, 101}
	b := []float64{200, 201, 199, 200, 202, 198, 200, 201}

	tStat, p := WelchTTest(a, b)
	if tStat >= 0 {
		t.Errorf("t = %v, want negative (a below b)", tStat)
	}
	if p != 0.0001 {
		t.Errorf("p = %v, want clamped floor 0.0001", p)
	}
	t.Logf("t=%.4f p=%.4f", tStat, p)
}

func TestWelchTTestDegenerate(t *testing.T) {
	// Single-element samples cannot produce a variance.
	if tStat, p := WelchTTest([]float64{5}, []float64{10, 11, 12}); tStat != 0 || p != 1 {
		t.Errorf("single-element sample: t=%v p=%v, want 0, 1", tStat, p)
	}
	// Two constant samples: zero pooled standard error.
	if tStat, p := WelchTTest([]float64{5, 5, 5}, []float64{5, 5, 5}); tStat != 0 || p != 1 {
		t.Errorf("zero variance: t=%v p=%v, want 0, 1", tStat, p)
	}
}

func TestNormalCDF(t *testing.T) {
	cases := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1.96, 0.975},
		{-1.96, 0.025},
		{3, 0.99865},
		{-3, 0.00135},
	}
	for _, c := range cases {
		got := NormalCDF(c.x)
		if !almostEqual(got, c.want, 0.001) {
			t.Errorf("NormalCDF(%v) = %v, want ~%v", c.x, got, c.want)
		}
	}
	// Symmetry: Φ(x) + Φ(-x) = 1.
	for _, x := range []float64{0.5, 1.5, 2.5} {
		sum := NormalCDF(x) + NormalCDF(-x)
		if !almostEqual(sum, 1, 1e-6) {
			t.Errorf("Φ(%v)+Φ(-%v) = %v, want 1", x, x, sum)
		}
	}
}

func TestRound(t *testing.T) {
	if got := Round(3.14159, 2); got != 3.14 {
		t.Errorf("Round(3.14159, 2) = %v", got)
	}
	if got := Round(2.675, 3); got != 2.675 {
		t.Errorf("Round(2.675, 3) = %v", got)
	}
	if got := Round(-2.5, 0); got != -3 {
		t.Errorf("Round(-2.5, 0) = %v, want -3 (half away from zero)", got)
	}
}
