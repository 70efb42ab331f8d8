package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"OVIP/internal/domain/models"
)

// Shift lags s by one period: out[t] = s[t-1], out[0] is missing.
func Shift(s models.Series) models.Series {
	out := models.NewSeries(len(s))
	for i := 1; i < len(s); i++ {
		out[i] = s[i-1]
	}
	return out
}

// Diff computes the first difference s[t] - s[t-1]; missing inputs propagate.
func Diff(s models.Series) models.Series {
	out := models.NewSeries(len(s))
	for i := 1; i < len(s); i++ {
		out[i] = s[i] - s[i-1]
	}
	return out
}

// PctChange computes simple returns s[t]/s[t-1] - 1. A zero or missing previous
// value yields a missing return.
func PctChange(s models.Series) models.Series {
	out := models.NewSeries(len(s))
	for i := 1; i < len(s); i++ {
		prev := s[i-1]
		if math.IsNaN(prev) || prev == 0 {
			continue
		}
		out[i] = s[i]/prev - 1
	}
	return out
}

// RollingMean is the mean over the trailing window ending at t. Rows without a
// full window of non-missing values are missing.
func RollingMean(s models.Series, window int) models.Series {
	return rolling(s, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RollingStd is the sample standard deviation over the trailing window.
func RollingStd(s models.Series, window int) models.Series {
	if window < 2 {
		return models.NewSeries(len(s))
	}
	return rolling(s, window, func(w []float64) float64 { return stat.StdDev(w, nil) })
}

func rolling(s models.Series, window int, fn func([]float64) float64) models.Series {
	out := models.NewSeries(len(s))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(s); i++ {
		w := s[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

func hasNaN(w []float64) bool {
	for _, v := range w {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// runningStd is a Welford accumulator for sample standard deviation.
type runningStd struct {
	n    int
	mean float64
	m2   float64
}

func (r *runningStd) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	r.n++
	d := v - r.mean
	r.mean += d / float64(r.n)
	r.m2 += d * (v - r.mean)
}

func (r *runningStd) std() float64 {
	if r.n < 2 {
		return math.NaN()
	}
	return math.Sqrt(r.m2 / float64(r.n-1))
}

// GroupedExpandingStdBefore returns, for each row t, the sample standard deviation
// of values at rows before t sharing t's group label. When the group has fewer
// than two earlier observations it falls back to all rows before t. Row t itself
// never contributes to its own value.
func GroupedExpandingStdBefore(values, groups models.Series) models.Series {
	out := models.NewSeries(len(values))
	byGroup := make(map[float64]*runningStd)
	var global runningStd

	for t := range values {
		g := groups.At(t)
		if math.IsNaN(g) {
			out[t] = global.std()
			global.add(values[t])
			continue
		}
		acc, ok := byGroup[g]
		if !ok {
			acc = &runningStd{}
			byGroup[g] = acc
		}

		if v := acc.std(); !math.IsNaN(v) {
			out[t] = v
		} else {
			out[t] = global.std()
		}

		acc.add(values[t])
		global.add(values[t])
	}
	return out
}

// Log1p applies log(1+x) element-wise.
func Log1p(s models.Series) models.Series {
	out := make(models.Series, len(s))
	for i, v := range s {
		out[i] = math.Log1p(v)
	}
	return out
}

// Mul multiplies two aligned series.
func Mul(a, b models.Series) models.Series {
	out := make(models.Series, len(a))
	for i := range a {
		out[i] = a[i] * b.At(i)
	}
	return out
}

// MeanSkipNaN averages the non-missing values at the given rows. It returns NaN
// and zero when no value is present.
func MeanSkipNaN(s models.Series, rows []int) (float64, int) {
	vals := make([]float64, 0, len(rows))
	for _, i := range rows {
		if v := s.At(i); !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), 0
	}
	return stat.Mean(vals, nil), len(vals)
}
