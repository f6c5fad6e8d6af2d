// Package operations runs the smoothing pipeline as a sequence of steps.
//
// A run loads the input file, computes the requested rolling mean and
// exponentially weighted mean columns, and renders one chart per computed
// column:
//
//	load ─┬─ rolling_mean ── render_rolling_mean
//	      └─ ewm_mean ────── render_ewm_mean
//
// A family whose base name is empty is skipped together with its render
// step. The first failing step aborts the run; its error is returned wrapped
// in an *OperationError whose cause keeps the errors.Kind of the component
// that failed.
package operations
