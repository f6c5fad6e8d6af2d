package operations

import (
	"time"

	"tschart/internal/charts"
	"tschart/internal/smoothing"
	"tschart/pkg/contracts/domain"
)

// Pipeline step identifiers
const (
	StepIDLoad              = "load"
	StepIDRollingMean       = "rolling_mean"
	StepIDEWMMean           = "ewm_mean"
	StepIDRenderRollingMean = "render_rolling_mean"
	StepIDRenderEWMMean     = "render_ewm_mean"
)

// Pipeline step names
const (
	StepNameLoad              = "Load Time Series"
	StepNameRollingMean       = "Rolling Mean"
	StepNameEWMMean           = "Exponentially Weighted Mean"
	StepNameRenderRollingMean = "Render Rolling Mean Charts"
	StepNameRenderEWMMean     = "Render EWM Charts"
)

// Smoothing families, used as keys of OperationResponse.Figures
const (
	FamilyRollingMean = "rolling_mean"
	FamilyEWMMean     = "ewm_mean"
)

// Request describes one pipeline run
type Request struct {
	ID          string `json:"id"`
	InputPath   string `json:"input_path"`
	OutputDir   string `json:"output_dir"`
	DateColumn  string `json:"date_column"`
	ValueColumn string `json:"value_column"`

	// Windows and Spans are only used when the matching base name is set
	Windows       []int  `json:"windows"`
	Spans         []int  `json:"spans"`
	MovingAverage string `json:"moving_average,omitempty"`
	EWMAverage    string `json:"ewm_average,omitempty"`

	EWMOptions smoothing.EWMOptions `json:"ewm_options"`
	Format     charts.Format        `json:"format"`
}

// OperationResponse represents the outcome of a pipeline run
type OperationResponse struct {
	ID       string                      `json:"id"`
	Status   OperationStatus             `json:"status"`
	Duration time.Duration               `json:"duration"`
	Steps    []*StepState                `json:"steps"`
	Table    *domain.Table               `json:"-"`
	Figures  map[string][]*charts.Figure `json:"figures"`
	Error    string                      `json:"error,omitempty"`
}

// ChartPaths returns the written chart paths, rolling mean charts first,
// each family in parameter order
func (r *OperationResponse) ChartPaths() []string {
	var paths []string
	for _, family := range []string{FamilyRollingMean, FamilyEWMMean} {
		for _, fig := range r.Figures[family] {
			paths = append(paths, fig.Path)
		}
	}
	return paths
}

// Step returns the state of the step with the given ID, or nil
func (r *OperationResponse) Step(id string) *StepState {
	for _, s := range r.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
