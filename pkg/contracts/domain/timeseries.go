package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is an ordered, column-oriented time series table. Two columns are
// distinguished: the date column, which carries normalized timestamps, and
// the value column. Source columns keep the cell text they were read with;
// computed columns hold float64 values. Row order is the source order.
type Table struct {
	DateColumn  string `json:"date_column"`
	ValueColumn string `json:"value_column"`

	columns  []string
	text     map[string][]string
	computed map[string][]float64
	dates    []time.Time
	rows     int
}

// CoercionError reports a cell that could not be read as a number.
type CoercionError struct {
	Column string
	Row    int
	Text   string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %q row %d: cannot convert %q to a number: %v", e.Column, e.Row, e.Text, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// NewTable creates an empty table with the given date and value column names.
func NewTable(dateColumn, valueColumn string) *Table {
	return &Table{
		DateColumn:  dateColumn,
		ValueColumn: valueColumn,
		text:        make(map[string][]string),
		computed:    make(map[string][]float64),
	}
}

// NewSeriesTable builds a two-column table from parallel date and value slices.
func NewSeriesTable(dateColumn, valueColumn string, dates []time.Time, values []string) (*Table, error) {
	t := NewTable(dateColumn, valueColumn)
	raw := make([]string, len(dates))
	for i, d := range dates {
		raw[i] = d.Format(time.RFC3339)
	}
	if err := t.AddSourceColumn(dateColumn, raw); err != nil {
		return nil, err
	}
	if err := t.SetDates(dates); err != nil {
		return nil, err
	}
	if err := t.AddSourceColumn(valueColumn, values); err != nil {
		return nil, err
	}
	return t, nil
}

// ColumnName derives the name of a computed column from a base name and a
// window or span parameter.
func ColumnName(base string, param int) string {
	return base + "_" + strconv.Itoa(param)
}

// ParseNumber converts cell text to a float64. Blank cells are missing
// observations and become NaN.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.rows
}

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	if _, ok := t.text[name]; ok {
		return true
	}
	_, ok := t.computed[name]
	return ok
}

// AddSourceColumn appends a column of raw cell text read from a source file.
func (t *Table) AddSourceColumn(name string, cells []string) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if err := t.checkLength(name, len(cells)); err != nil {
		return err
	}
	t.text[name] = cells
	t.columns = append(t.columns, name)
	t.rows = len(cells)
	return nil
}

// SetDates stores the normalized timestamps of the date column.
func (t *Table) SetDates(dates []time.Time) error {
	if _, ok := t.text[t.DateColumn]; !ok {
		return fmt.Errorf("date column %q is not present", t.DateColumn)
	}
	if len(dates) != t.rows {
		return fmt.Errorf("date column %q: got %d timestamps for %d rows", t.DateColumn, len(dates), t.rows)
	}
	t.dates = dates
	return nil
}

// Dates returns the normalized timestamps of the date column.
func (t *Table) Dates() []time.Time {
	return t.dates
}

// AddColumn stores a computed column. The date and value columns are never
// replaced; recomputing an existing computed column overwrites it in place.
func (t *Table) AddColumn(name string, values []float64) error {
	if name == t.DateColumn || name == t.ValueColumn {
		return fmt.Errorf("column %q is reserved", name)
	}
	if _, ok := t.text[name]; ok {
		return fmt.Errorf("column %q already exists as a source column", name)
	}
	if err := t.checkLength(name, len(values)); err != nil {
		return err
	}
	if _, ok := t.computed[name]; !ok {
		t.columns = append(t.columns, name)
	}
	t.computed[name] = values
	t.rows = len(values)
	return nil
}

// Text returns the raw cells of a source column.
func (t *Table) Text(name string) ([]string, bool) {
	cells, ok := t.text[name]
	return cells, ok
}

// Float64s returns the numeric values of a column. Source columns are coerced
// cell by cell; the first cell that does not parse aborts with a
// *CoercionError.
func (t *Table) Float64s(name string) ([]float64, error) {
	if values, ok := t.computed[name]; ok {
		return values, nil
	}
	cells, ok := t.text[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]float64, len(cells))
	for i, cell := range cells {
		v, err := ParseNumber(cell)
		if err != nil {
			return nil, &CoercionError{Column: name, Row: i, Text: cell, Err: err}
		}
		values[i] = v
	}
	return values, nil
}

// Row returns row i as a mapping from column name to value.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.columns))
	for _, name := range t.columns {
		switch {
		case name == t.DateColumn && t.dates != nil:
			row[name] = t.dates[i]
		case t.computed[name] != nil:
			row[name] = t.computed[name][i]
		default:
			row[name] = t.text[name][i]
		}
	}
	return row
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := NewTable(t.DateColumn, t.ValueColumn)
	c.columns = append([]string(nil), t.columns...)
	c.rows = t.rows
	for k, v := range t.text {
		c.text[k] = append([]string(nil), v...)
	}
	for k, v := range t.computed {
		c.computed[k] = append([]float64(nil), v...)
	}
	if t.dates != nil {
		c.dates = append([]time.Time(nil), t.dates...)
	}
	return c
}

func (t *Table) checkLength(name string, n int) error {
	if len(t.columns) > 0 && n != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", name, n, t.rows)
	}
	return nil
}
