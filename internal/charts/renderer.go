package charts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	apperrors "tschart/internal/errors"
	"tschart/internal/validation"
	"tschart/pkg/contracts/domain"
)

// RawSeriesLabel is the legend label of the unsmoothed series
const RawSeriesLabel = "Raw data"

// Options controls the size and encoding of rendered charts
type Options struct {
	Width       int
	Height      int
	DPI         float64
	JPEGQuality int
}

// DefaultOptions returns a 12x6 inch figure at 100 DPI
func DefaultOptions() Options {
	return Options{
		Width:       1200,
		Height:      600,
		DPI:         100,
		JPEGQuality: 90,
	}
}

// Figure is the in-memory handle of a rendered chart
type Figure struct {
	Path   string      `json:"path"`
	Format Format      `json:"format"`
	Title  string      `json:"title"`
	Column string      `json:"column"`
	Chart  chart.Chart `json:"-"`
}

// Renderer draws computed columns against the raw series and saves them
type Renderer struct {
	opts      Options
	logger    *slog.Logger
	validator *validation.FileValidator
}

// NewRenderer creates a renderer. Zero-valued options fall back to
// DefaultOptions and a nil logger to slog.Default().
func NewRenderer(opts Options, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = def.JPEGQuality
	}
	return &Renderer{
		opts:      opts,
		logger:    logger,
		validator: validation.NewFileValidator(logger),
	}
}

// Options returns the effective options
func (r *Renderer) Options() Options {
	return r.opts
}

// ChartPath returns outputDir/<column>.<format>
func ChartPath(outputDir, column string, format Format) string {
	return filepath.Join(outputDir, column+"."+string(format))
}

// RenderOne plots computedCol and valueCol against dateCol and writes the
// chart to outputDir/<computedCol>.<format>. The directory is created if
// needed; the file is only written once encoding has succeeded.
func (r *Renderer) RenderOne(ctx context.Context, t *domain.Table, outputDir string, format Format, dateCol, valueCol, computedCol string) (*Figure, error) {
	path := ChartPath(outputDir, computedCol, format)

	raw, smoothed, err := r.columns(t, dateCol, valueCol, computedCol)
	if err != nil {
		return nil, err
	}

	if err := r.validator.ValidateOutputDirectory(outputDir); err != nil {
		return nil, apperrors.RenderFailure(path, err)
	}

	title := "Time series and " + computedCol
	ch := r.buildChart(title, dateCol, valueCol, computedCol, t.Dates(), raw, smoothed)

	data, err := encode(ch, format, r.opts)
	if err != nil {
		return nil, apperrors.RenderFailure(path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, apperrors.RenderFailure(path, fmt.Errorf("write chart: %w", err))
	}

	r.logger.InfoContext(ctx, "chart written",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.String("column", computedCol),
		slog.Int("bytes", len(data)))

	return &Figure{
		Path:   path,
		Format: format,
		Title:  title,
		Column: computedCol,
		Chart:  ch,
	}, nil
}

// RenderMany renders domain.ColumnName(baseName, p) for every parameter in
// order and stops at the first failure. Charts written before a failure are
// kept. An empty parameter list returns an empty slice without touching disk.
func (r *Renderer) RenderMany(ctx context.Context, t *domain.Table, outputDir string, format Format, dateCol, valueCol string, params []int, baseName string) ([]*Figure, error) {
	figures := make([]*Figure, 0, len(params))
	for _, p := range params {
		fig, err := r.RenderOne(ctx, t, outputDir, format, dateCol, valueCol, domain.ColumnName(baseName, p))
		if err != nil {
			return figures, err
		}
		figures = append(figures, fig)
	}
	return figures, nil
}

func (r *Renderer) columns(t *domain.Table, dateCol, valueCol, computedCol string) (raw, smoothed []float64, err error) {
	if t == nil {
		return nil, nil, apperrors.InvalidParameter("render", "table is nil")
	}
	for _, name := range []string{dateCol, valueCol, computedCol} {
		if !t.HasColumn(name) {
			return nil, nil, apperrors.MissingColumn("render", "", name)
		}
	}
	if dateCol != t.DateColumn || len(t.Dates()) != t.Len() {
		return nil, nil, apperrors.InvalidParameter("render", fmt.Sprintf("column %q does not hold parsed dates", dateCol))
	}
	if raw, err = t.Float64s(valueCol); err != nil {
		return nil, nil, apperrors.TypeViolation("render", valueCol, err)
	}
	if smoothed, err = t.Float64s(computedCol); err != nil {
		return nil, nil, apperrors.TypeViolation("render", computedCol, err)
	}
	return raw, smoothed, nil
}

func (r *Renderer) buildChart(title, dateCol, valueCol, computedCol string, dates []time.Time, raw, smoothed []float64) chart.Chart {
	rawSeries := timeSeries(RawSeriesLabel, dates, raw, chart.ColorBlue)
	smoothSeries := timeSeries(computedCol, dates, smoothed, chart.ColorOrange)

	var series []chart.Series
	for _, s := range []chart.TimeSeries{rawSeries, smoothSeries} {
		if len(s.XValues) > 0 {
			series = append(series, s)
		}
	}
	visible := len(series) > 0

	ranged := []chart.TimeSeries{rawSeries, smoothSeries}
	if !visible {
		// go-chart needs at least one visible series, so an empty frame gets a
		// transparent one
		placeholder := emptyFrameSeries(dates)
		series = append(series, placeholder)
		ranged = append(ranged, placeholder)
	}

	xRange, yRange := plotRanges(ranged...)
	grid := chart.Style{
		StrokeColor: drawing.ColorBlack.WithAlpha(77),
		StrokeWidth: 1,
	}

	ch := chart.Chart{
		Title:  title,
		Width:  r.opts.Width,
		Height: r.opts.Height,
		DPI:    r.opts.DPI,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           dateCol,
			Range:          xRange,
			ValueFormatter: chart.TimeDateValueFormatter,
			Style:          chart.Style{TextRotationDegrees: 45},
			GridMajorStyle: grid,
		},
		YAxis: chart.YAxis{
			Name:           valueCol,
			Range:          yRange,
			GridMajorStyle: grid,
		},
		Series: series,
	}
	if visible {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch
}

// emptyFrameSeries is a single transparent point anchored on the first date,
// or on the Unix epoch when the table has no rows
func emptyFrameSeries(dates []time.Time) chart.TimeSeries {
	anchor := time.Unix(0, 0).UTC()
	if len(dates) > 0 {
		anchor = dates[0]
	}
	return chart.TimeSeries{
		Style:   chart.Style{StrokeColor: drawing.ColorTransparent, StrokeWidth: 1},
		XValues: []time.Time{anchor},
		YValues: []float64{0},
	}
}

// timeSeries drops missing observations, which go-chart cannot draw
func timeSeries(name string, dates []time.Time, values []float64, color drawing.Color) chart.TimeSeries {
	s := chart.TimeSeries{
		Name:  name,
		Style: chart.Style{StrokeColor: color, StrokeWidth: 2},
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.XValues = append(s.XValues, dates[i])
		s.YValues = append(s.YValues, v)
	}
	return s
}

// plotRanges spans every plotted point. go-chart refuses zero-width ranges,
// so a single date or a flat series is widened around its value.
func plotRanges(series ...chart.TimeSeries) (x, y *chart.ContinuousRange) {
	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for i, d := range s.XValues {
			xv := chart.TimeToFloat64(d)
			xMin, xMax = math.Min(xMin, xv), math.Max(xMax, xv)
			yMin, yMax = math.Min(yMin, s.YValues[i]), math.Max(yMax, s.YValues[i])
		}
	}
	if xMin == xMax {
		half := chart.TimeToFloat64(time.Unix(0, 0).Add(12*time.Hour)) - chart.TimeToFloat64(time.Unix(0, 0))
		xMin, xMax = xMin-half, xMax+half
	}
	if yMin == yMax {
		pad := math.Max(math.Abs(yMin)*0.05, 1)
		yMin, yMax = yMin-pad, yMax+pad
	}
	return &chart.ContinuousRange{Min: xMin, Max: xMax}, &chart.ContinuousRange{Min: yMin, Max: yMax}
}
