package operations

import (
	"context"
	"errors"

	"tschart/internal/charts"
	"tschart/internal/smoothing"
	"tschart/pkg/contracts/domain"
)

// Metadata keys recorded by the steps and picked up by the tracer
const (
	metaRowsLoaded      = "rows_loaded"
	metaColumnsComputed = "columns_computed"
	metaChartsWritten   = "charts_written"
)

var errNoTable = errors.New("no table loaded")

// TableLoader reads a source file into a table
type TableLoader interface {
	Load(ctx context.Context, path, dateCol, valueCol string) (*domain.Table, error)
}

// ChartRenderer writes one chart per smoothing parameter
type ChartRenderer interface {
	RenderMany(ctx context.Context, t *domain.Table, outputDir string, format charts.Format, dateCol, valueCol string, params []int, baseName string) ([]*charts.Figure, error)
}

// LoadStep reads the input file
type LoadStep struct {
	BaseStage
	loader TableLoader
}

// NewLoadStep creates the load step
func NewLoadStep(loader TableLoader) *LoadStep {
	return &LoadStep{
		BaseStage: NewBaseStage(StepIDLoad, StepNameLoad, nil),
		loader:    loader,
	}
}

// Execute loads the table into the operation state
func (s *LoadStep) Execute(ctx context.Context, state *OperationState) error {
	req := state.Request
	table, err := s.loader.Load(ctx, req.InputPath, req.DateColumn, req.ValueColumn)
	if err != nil {
		return err
	}
	state.Table = table
	if step := state.GetStage(s.ID()); step != nil {
		step.Metadata[metaRowsLoaded] = table.Len()
	}
	return nil
}

// RollingMeanStep appends one rolling mean column per window
type RollingMeanStep struct {
	BaseStage
}

// NewRollingMeanStep creates the rolling mean step
func NewRollingMeanStep() *RollingMeanStep {
	return &RollingMeanStep{
		BaseStage: NewBaseStage(StepIDRollingMean, StepNameRollingMean, []string{StepIDLoad}),
	}
}

// SkipReason skips the step when no moving-average base name was requested
func (s *RollingMeanStep) SkipReason(state *OperationState) string {
	if state.Request.MovingAverage == "" {
		return "moving average not requested"
	}
	return ""
}

// Validate requires a loaded table
func (s *RollingMeanStep) Validate(state *OperationState) error {
	if state.Table == nil {
		return errNoTable
	}
	return nil
}

// Execute computes the rolling mean columns
func (s *RollingMeanStep) Execute(_ context.Context, state *OperationState) error {
	req := state.Request
	table, err := smoothing.RollingMean(state.Table, req.Windows, req.ValueColumn, req.MovingAverage)
	if err != nil {
		return err
	}
	state.Table = table
	if step := state.GetStage(s.ID()); step != nil {
		step.Metadata[metaColumnsComputed] = len(req.Windows)
	}
	return nil
}

// EWMStep appends one exponentially weighted mean column per span
type EWMStep struct {
	BaseStage
}

// NewEWMStep creates the EWM step
func NewEWMStep() *EWMStep {
	return &EWMStep{
		BaseStage: NewBaseStage(StepIDEWMMean, StepNameEWMMean, []string{StepIDLoad}),
	}
}

// SkipReason skips the step when no EWM base name was requested
func (s *EWMStep) SkipReason(state *OperationState) string {
	if state.Request.EWMAverage == "" {
		return "exponentially weighted mean not requested"
	}
	return ""
}

// Validate requires a loaded table
func (s *EWMStep) Validate(state *OperationState) error {
	if state.Table == nil {
		return errNoTable
	}
	return nil
}

// Execute computes the EWM columns
func (s *EWMStep) Execute(_ context.Context, state *OperationState) error {
	req := state.Request
	table, err := smoothing.EWMMean(state.Table, req.Spans, req.ValueColumn, req.EWMAverage, req.EWMOptions)
	if err != nil {
		return err
	}
	state.Table = table
	if step := state.GetStage(s.ID()); step != nil {
		step.Metadata[metaColumnsComputed] = len(req.Spans)
	}
	return nil
}

// RenderStep writes the charts of one smoothing family
type RenderStep struct {
	BaseStage
	renderer ChartRenderer
	family   string
}

// NewRenderStep creates a render step for family, which depends on the step
// computing that family's columns
func NewRenderStep(id, name, family, computeStep string, renderer ChartRenderer) *RenderStep {
	return &RenderStep{
		BaseStage: NewBaseStage(id, name, []string{StepIDLoad, computeStep}),
		renderer:  renderer,
		family:    family,
	}
}

func (s *RenderStep) params(req Request) ([]int, string) {
	if s.family == FamilyRollingMean {
		return req.Windows, req.MovingAverage
	}
	return req.Spans, req.EWMAverage
}

// SkipReason skips the step when its family was not requested
func (s *RenderStep) SkipReason(state *OperationState) string {
	if _, base := s.params(state.Request); base == "" {
		return s.family + " not requested"
	}
	return ""
}

// Validate requires a loaded table
func (s *RenderStep) Validate(state *OperationState) error {
	if state.Table == nil {
		return errNoTable
	}
	return nil
}

// Execute renders one chart per parameter. Figures written before a failure
// are kept in the state.
func (s *RenderStep) Execute(ctx context.Context, state *OperationState) error {
	req := state.Request
	params, base := s.params(req)
	figures, err := s.renderer.RenderMany(ctx, state.Table, req.OutputDir, req.Format, req.DateColumn, req.ValueColumn, params, base)
	state.Figures[s.family] = figures
	if step := state.GetStage(s.ID()); step != nil {
		step.Metadata[metaChartsWritten] = len(figures)
	}
	return err
}
