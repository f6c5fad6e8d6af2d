package dataprocessing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	apperrors "tschart/internal/errors"
	"tschart/internal/validation"
	"tschart/pkg/contracts/domain"
)

// Loader reads time series files into a domain.Table
type Loader struct {
	logger    *slog.Logger
	validator *validation.FileValidator
}

// NewLoader creates a loader. A nil logger falls back to slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:    logger,
		validator: validation.NewFileValidator(logger),
	}
}

// Load reads path and returns a table whose date column holds UTC timestamps
// and whose value column is fully numeric. The checks run in a fixed order:
// existence, extension, parse, required columns, dates, numeric values. Any
// failure aborts the load and no partial table is returned.
func (l *Loader) Load(ctx context.Context, path, dateCol, valueCol string) (*domain.Table, error) {
	ext, err := l.validator.ValidateInputFile(path)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "loading time series",
		slog.String("path", path),
		slog.String("format", ext),
		slog.String("date_column", dateCol),
		slog.String("value_column", valueCol))

	raw, err := readRaw(path, ext)
	if err != nil {
		return nil, wrapRead(path, err)
	}

	table, err := buildTable(raw, path, dateCol, valueCol)
	if err != nil {
		return nil, err
	}

	// Dates were parsed while the table was built; normalize once more so the
	// table always carries the canonical representation.
	if err := table.SetDates(normalizeDates(table.Dates())); err != nil {
		return nil, wrapRead(path, err)
	}

	if _, err := table.Float64s(valueCol); err != nil {
		tv := apperrors.TypeViolation("load", valueCol, err)
		tv.Path = path
		return nil, tv
	}

	l.logger.InfoContext(ctx, "time series loaded",
		slog.String("path", path),
		slog.Int("rows_loaded", table.Len()),
		slog.Int("columns", len(table.Columns())))

	return table, nil
}

// readRaw dispatches on the (already validated) extension
func readRaw(path, ext string) (*rawTable, error) {
	switch ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return readCSV(f)
	case ".txt":
		return readText(path)
	case ".xlsx":
		return readXLSX(path)
	case ".xls":
		return readXLS(path)
	default:
		return nil, apperrors.UnsupportedFormat(path, ext)
	}
}

// buildTable checks for the required columns, then assembles the table
// column by column, parsing every date cell on the way.
func buildTable(raw *rawTable, path, dateCol, valueCol string) (*domain.Table, error) {
	index := make(map[string]int, len(raw.header))
	for i, name := range raw.header {
		index[name] = i
	}
	for _, required := range []string{dateCol, valueCol} {
		if _, ok := index[required]; !ok {
			return nil, apperrors.MissingColumn("load", path, required)
		}
	}

	dateIdx := index[dateCol]
	dates := make([]time.Time, len(raw.records))
	for i, rec := range raw.records {
		d, err := parseDate(rec[dateIdx], raw.spreadsheet)
		if err != nil {
			return nil, wrapRead(path, fmt.Errorf("column %q data row %d: invalid date %q: %w", dateCol, i+1, rec[dateIdx], err))
		}
		dates[i] = d
	}

	table := domain.NewTable(dateCol, valueCol)
	for j, name := range raw.header {
		cells := make([]string, len(raw.records))
		for i, rec := range raw.records {
			cells[i] = rec[j]
		}
		if err := table.AddSourceColumn(name, cells); err != nil {
			return nil, wrapRead(path, err)
		}
	}
	if err := table.SetDates(dates); err != nil {
		return nil, wrapRead(path, err)
	}
	return table, nil
}

// wrapRead wraps err as a read failure unless it is already typed
func wrapRead(path string, err error) error {
	var typed *apperrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return apperrors.ReadFailure(path, err)
}
