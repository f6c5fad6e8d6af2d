package smoothing

import (
	"math"

	"tschart/pkg/contracts/domain"
)

const opRollingMean = "rolling_mean"

// RollingMean adds one column per window holding the trailing mean of the
// value column. Row i averages rows max(0, i-w+1) through i; missing
// observations are skipped and a window without any observation yields NaN.
// Columns are named domain.ColumnName(baseName, w).
func RollingMean(t *domain.Table, windows []int, valueCol, baseName string) (*domain.Table, error) {
	values, err := prepare(opRollingMean, t, windows, valueCol, baseName)
	if err != nil {
		return nil, err
	}
	return addColumns(opRollingMean, t, windows, baseName, func(w int) []float64 {
		return rollingMean(values, w)
	})
}

// rollingMean slides a compensated running sum over the series, so each
// window costs O(1) regardless of its length. Infinities are counted apart
// from the sum; once they leave the window the sum is still finite.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window == 1 {
		copy(out, values)
		return out
	}

	var acc windowSum
	for i, v := range values {
		acc.add(v)
		if j := i - window; j >= 0 {
			acc.remove(values[j])
		}
		out[i] = acc.mean()
	}
	return out
}

// windowSum is a Kahan-compensated sum over the non-NaN observations of a
// window
type windowSum struct {
	sum, comp      float64
	n              int
	posInf, negInf int
}

func (w *windowSum) add(v float64) {
	switch {
	case math.IsNaN(v):
		return
	case math.IsInf(v, 1):
		w.posInf++
	case math.IsInf(v, -1):
		w.negInf++
	default:
		w.kahan(v)
	}
	w.n++
}

func (w *windowSum) remove(v float64) {
	switch {
	case math.IsNaN(v):
		return
	case math.IsInf(v, 1):
		w.posInf--
	case math.IsInf(v, -1):
		w.negInf--
	default:
		w.kahan(-v)
	}
	w.n--
	if w.n == 0 {
		// drop accumulated rounding once the window is empty
		w.sum, w.comp = 0, 0
	}
}

// kahan adds v with Neumaier's variant of Kahan summation, which also keeps
// the low-order part when v is larger than the running sum
func (w *windowSum) kahan(v float64) {
	t := w.sum + v
	if math.Abs(w.sum) >= math.Abs(v) {
		w.comp += (w.sum - t) + v
	} else {
		w.comp += (v - t) + w.sum
	}
	w.sum = t
}

func (w *windowSum) mean() float64 {
	switch {
	case w.n == 0:
		return math.NaN()
	case w.posInf > 0 && w.negInf > 0:
		return math.NaN()
	case w.posInf > 0:
		return math.Inf(1)
	case w.negInf > 0:
		return math.Inf(-1)
	}
	return (w.sum + w.comp) / float64(w.n)
}
