package smoothing

import (
	"math"

	"tschart/pkg/contracts/domain"
)

const opEWMMean = "ewm_mean"

// EWMOptions controls the weighting of the exponentially weighted mean
type EWMOptions struct {
	// Adjust divides by the decaying sum of weights, which removes the bias
	// towards the first observation. Without it the plain recurrence
	// y[i] = alpha*x[i] + (1-alpha)*y[i-1] is used.
	Adjust bool

	// IgnoreNA keeps weights from decaying across missing observations.
	IgnoreNA bool
}

// DefaultEWMOptions returns the adjusted, NA-aware weighting
func DefaultEWMOptions() EWMOptions {
	return EWMOptions{Adjust: true}
}

// Alpha returns the smoothing factor for a span
func Alpha(span int) float64 {
	return 2.0 / (float64(span) + 1.0)
}

// EWMMean adds one column per span holding the exponentially weighted mean of
// the value column with alpha = 2/(span+1). Output is NaN until the first
// observation and carries the last mean across missing observations.
// Columns are named domain.ColumnName(baseName, span).
func EWMMean(t *domain.Table, spans []int, valueCol, baseName string, opts EWMOptions) (*domain.Table, error) {
	values, err := prepare(opEWMMean, t, spans, valueCol, baseName)
	if err != nil {
		return nil, err
	}
	return addColumns(opEWMMean, t, spans, baseName, func(span int) []float64 {
		return ewmMean(values, Alpha(span), opts)
	})
}

func ewmMean(values []float64, alpha float64, opts EWMOptions) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	decay := 1 - alpha
	newWt := 1.0
	if !opts.Adjust {
		newWt = alpha
	}

	weighted := values[0]
	oldWt := 1.0
	out[0] = weighted
	for i := 1; i < len(values); i++ {
		cur := values[i]
		observed := !math.IsNaN(cur)

		switch {
		case !math.IsNaN(weighted):
			if observed || !opts.IgnoreNA {
				oldWt *= decay
				if observed {
					if weighted != cur {
						weighted = (oldWt*weighted + newWt*cur) / (oldWt + newWt)
					}
					if opts.Adjust {
						oldWt += newWt
					} else {
						oldWt = 1
					}
				}
			}
		case observed:
			weighted = cur
		}
		out[i] = weighted
	}
	return out
}
