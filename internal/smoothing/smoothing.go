package smoothing

import (
	"fmt"

	apperrors "tschart/internal/errors"
	"tschart/pkg/contracts/domain"
)

// prepare runs the checks shared by both smoothing families and returns the
// coerced value column. Nothing is written to the table before it succeeds,
// so a failed call leaves the table unchanged.
func prepare(op string, t *domain.Table, params []int, valueCol, baseName string) ([]float64, error) {
	if t == nil {
		return nil, apperrors.InvalidParameter(op, "table is nil")
	}
	if !t.HasColumn(valueCol) {
		return nil, apperrors.MissingColumn(op, "", valueCol)
	}
	values, err := t.Float64s(valueCol)
	if err != nil {
		return nil, apperrors.TypeViolation(op, valueCol, err)
	}

	if len(params) > 0 && baseName == "" {
		return nil, apperrors.InvalidParameter(op, "base name must not be empty")
	}
	for _, p := range params {
		if p < 1 {
			return nil, apperrors.InvalidParameter(op, fmt.Sprintf("parameter must be at least 1, got %d", p))
		}
		name := domain.ColumnName(baseName, p)
		if name == t.DateColumn || name == t.ValueColumn {
			return nil, apperrors.InvalidParameter(op, fmt.Sprintf("output column %q would replace a required column", name))
		}
		if _, isSource := t.Text(name); isSource {
			return nil, apperrors.InvalidParameter(op, fmt.Sprintf("output column %q would replace a source column", name))
		}
	}
	return values, nil
}

// addColumns stores the computed columns in parameter order
func addColumns(op string, t *domain.Table, params []int, baseName string, compute func(p int) []float64) (*domain.Table, error) {
	for _, p := range params {
		name := domain.ColumnName(baseName, p)
		if err := t.AddColumn(name, compute(p)); err != nil {
			return nil, apperrors.InvalidParameter(op, err.Error())
		}
	}
	return t, nil
}
