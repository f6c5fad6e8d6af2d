package operations

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/internal/charts"
	"tschart/internal/dataprocessing"
	apperrors "tschart/internal/errors"
	"tschart/internal/smoothing"
)

// fakeStep is a configurable step for exercising the manager
type fakeStep struct {
	BaseStage
	skip string
	err  error
	ran  bool
}

func newFakeStep(id string, deps ...string) *fakeStep {
	return &fakeStep{BaseStage: NewBaseStage(id, "fake "+id, deps)}
}

func (s *fakeStep) SkipReason(*OperationState) string { return s.skip }

func (s *fakeStep) Execute(context.Context, *OperationState) error {
	s.ran = true
	return s.err
}

func newTestPipeline(t *testing.T) *Manager {
	t.Helper()
	m, err := NewPipeline(dataprocessing.NewLoader(nil), charts.NewRenderer(charts.DefaultOptions(), nil), nil, nil)
	require.NoError(t, err)
	return m
}

func writeSeries(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func baseRequest(input, output string) Request {
	return Request{
		InputPath:   input,
		OutputDir:   output,
		DateColumn:  "date",
		ValueColumn: "value",
		EWMOptions:  smoothing.DefaultEWMOptions(),
		Format:      charts.FormatPNG,
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	input := writeSeries(t, "series.csv", "date,value\n2024-01-01,10\n2024-01-02,20\n2024-01-03,30\n")
	output := filepath.Join(t.TempDir(), "output")

	req := baseRequest(input, output)
	req.MovingAverage = "ma"
	req.Windows = []int{2}
	req.EWMAverage = "ewm"
	req.Spans = []int{1}

	resp, err := newTestPipeline(t).Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OperationStatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.ID)

	ma, err := resp.Table.Float64s("ma_2")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 15, 25}, ma)

	ewm, err := resp.Table.Float64s("ewm_1")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10, 20, 30}, ewm, 1e-12)

	wantPaths := []string{filepath.Join(output, "ma_2.png"), filepath.Join(output, "ewm_1.png")}
	assert.Equal(t, wantPaths, resp.ChartPaths())
	for _, p := range wantPaths {
		assert.FileExists(t, p)
	}

	for _, step := range resp.Steps {
		assert.Equal(t, StepStatusCompleted, step.Status, step.ID)
	}
	assert.Equal(t, 3, resp.Step(StepIDLoad).Metadata[metaRowsLoaded])
	assert.Equal(t, 1, resp.Step(StepIDRenderEWMMean).Metadata[metaChartsWritten])
}

func TestPipeline_NoFamiliesRequested(t *testing.T) {
	input := writeSeries(t, "series.csv", "date,value\n2024-01-01,10\n")
	output := filepath.Join(t.TempDir(), "output")

	resp, err := newTestPipeline(t).Execute(context.Background(), baseRequest(input, output))
	require.NoError(t, err)

	assert.Equal(t, OperationStatusCompleted, resp.Status)
	assert.Equal(t, StepStatusCompleted, resp.Step(StepIDLoad).Status)
	for _, id := range []string{StepIDRollingMean, StepIDEWMMean, StepIDRenderRollingMean, StepIDRenderEWMMean} {
		assert.Equal(t, StepStatusSkipped, resp.Step(id).Status, id)
		assert.NotEmpty(t, resp.Step(id).Message, id)
	}
	assert.Empty(t, resp.ChartPaths())
	assert.Equal(t, []string{"date", "value"}, resp.Table.Columns())
	assert.NoDirExists(t, output)
}

func TestPipeline_OnlyEWM(t *testing.T) {
	input := writeSeries(t, "series.csv", "date,value\n2024-01-01,10\n2024-01-02,20\n")
	output := t.TempDir()

	req := baseRequest(input, output)
	req.EWMAverage = "ewm"
	req.Spans = []int{3}
	req.Windows = []int{2}
	req.Format = charts.FormatJPG

	resp, err := newTestPipeline(t).Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StepStatusSkipped, resp.Step(StepIDRollingMean).Status)
	assert.Equal(t, StepStatusSkipped, resp.Step(StepIDRenderRollingMean).Status)
	assert.Equal(t, []string{filepath.Join(output, "ewm_3.jpg")}, resp.ChartPaths())
	assert.False(t, resp.Table.HasColumn("ma_2"))
}

func TestPipeline_UnsupportedInput(t *testing.T) {
	input := writeSeries(t, "series.json", `{"date": "2024-01-01", "value": 1}`)

	req := baseRequest(input, t.TempDir())
	req.MovingAverage = "ma"
	req.Windows = []int{2}

	resp, err := newTestPipeline(t).Execute(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, apperrors.KindUnsupportedFormat, apperrors.KindOf(err))
	assert.Equal(t, 4, apperrors.ExitCode(err))

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorTypeExecution, opErr.Type)
	assert.Equal(t, StepIDLoad, opErr.Step)

	assert.Equal(t, OperationStatusFailed, resp.Status)
	assert.Equal(t, StepStatusFailed, resp.Step(StepIDLoad).Status)
	assert.Contains(t, resp.Step(StepIDLoad).ErrorMessage, "series.json")
	for _, id := range []string{StepIDRollingMean, StepIDEWMMean, StepIDRenderRollingMean, StepIDRenderEWMMean} {
		assert.Equal(t, StepStatusSkipped, resp.Step(id).Status, id)
	}
	assert.Nil(t, resp.Table)
	assert.NotEmpty(t, resp.Error)
}

func TestPipeline_SmoothingFailureKeepsLaterStepsPending(t *testing.T) {
	input := writeSeries(t, "series.csv", "date,value\n2024-01-01,10\n2024-01-02,20\n")

	req := baseRequest(input, t.TempDir())
	req.MovingAverage = "ma"
	req.Windows = []int{0}
	req.EWMAverage = "ewm"
	req.Spans = []int{2}

	resp, err := newTestPipeline(t).Execute(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)

	assert.Equal(t, StepStatusCompleted, resp.Step(StepIDLoad).Status)
	assert.Equal(t, StepStatusFailed, resp.Step(StepIDRollingMean).Status)
	assert.Equal(t, StepStatusSkipped, resp.Step(StepIDRenderRollingMean).Status)
	assert.Equal(t, StepStatusPending, resp.Step(StepIDEWMMean).Status)
	assert.Equal(t, StepStatusPending, resp.Step(StepIDRenderEWMMean).Status)
}

func TestPipeline_InputWithoutObservationsWritesEmptyCharts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		rows    int
	}{
		{name: "header only", content: "date,value\n", rows: 0},
		{name: "all values blank", content: "date,value\n2024-01-01,\n2024-01-02,\n", rows: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := writeSeries(t, "series.csv", tt.content)
			output := filepath.Join(t.TempDir(), "output")

			req := baseRequest(input, output)
			req.MovingAverage = "ma"
			req.Windows = []int{2}
			req.EWMAverage = "ewm"
			req.Spans = []int{3}

			resp, err := newTestPipeline(t).Execute(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, OperationStatusCompleted, resp.Status)
			assert.Equal(t, tt.rows, resp.Table.Len())

			want := []string{filepath.Join(output, "ma_2.png"), filepath.Join(output, "ewm_3.png")}
			assert.Equal(t, want, resp.ChartPaths())
			for _, p := range want {
				assert.FileExists(t, p)
			}
		})
	}
}

func TestPipeline_BlankValuesSmoothedAroundGaps(t *testing.T) {
	input := writeSeries(t, "gaps.csv", "date,value\n2024-01-01,10\n2024-01-02,\n2024-01-03,30\n")

	req := baseRequest(input, t.TempDir())
	req.MovingAverage = "ma"
	req.Windows = []int{1}

	resp, err := newTestPipeline(t).Execute(context.Background(), req)
	require.NoError(t, err)

	ma, err := resp.Table.Float64s("ma_1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, ma[0])
	assert.True(t, math.IsNaN(ma[1]))
	assert.Equal(t, 30.0, ma[2])
}

func TestManager_RequiredRequestFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{name: "input path", mutate: func(r *Request) { r.InputPath = "" }},
		{name: "output directory", mutate: func(r *Request) { r.OutputDir = "" }},
		{name: "date column", mutate: func(r *Request) { r.DateColumn = "" }},
		{name: "value column", mutate: func(r *Request) { r.ValueColumn = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest("in.csv", "out")
			tt.mutate(&req)

			resp, err := newTestPipeline(t).Execute(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalidParameter, apperrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.name)
			for _, step := range resp.Steps {
				assert.Equal(t, StepStatusPending, step.Status, step.ID)
			}
		})
	}
}

func TestManager_AbortsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")

	a := newFakeStep("a")
	b := newFakeStep("b", "a")
	b.err = boom
	c := newFakeStep("c", "b")
	d := newFakeStep("d", "c")
	e := newFakeStep("e", "a")

	m, err := NewManager(nil, nil, nil)
	require.NoError(t, err)
	for _, s := range []Step{a, b, c, d, e} {
		require.NoError(t, m.RegisterStage(s))
	}

	resp, err := m.Execute(context.Background(), baseRequest("in.csv", "out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperrors.KindUnknown, apperrors.KindOf(err))

	assert.True(t, a.ran)
	assert.True(t, b.ran)
	assert.False(t, c.ran)
	assert.False(t, e.ran)

	assert.Equal(t, StepStatusCompleted, resp.Step("a").Status)
	assert.Equal(t, StepStatusFailed, resp.Step("b").Status)
	assert.Equal(t, "boom", resp.Step("b").ErrorMessage)
	assert.Equal(t, StepStatusSkipped, resp.Step("c").Status)
	assert.Equal(t, StepStatusSkipped, resp.Step("d").Status)
	assert.Equal(t, StepStatusPending, resp.Step("e").Status)
}

func TestManager_SkippedDependencySkipsDependents(t *testing.T) {
	a := newFakeStep("a")
	a.skip = "not requested"
	b := newFakeStep("b", "a")
	c := newFakeStep("c")

	m, err := NewManager(nil, nil, nil)
	require.NoError(t, err)
	for _, s := range []Step{a, b, c} {
		require.NoError(t, m.RegisterStage(s))
	}

	resp, err := m.Execute(context.Background(), baseRequest("in.csv", "out"))
	require.NoError(t, err)

	assert.Equal(t, StepStatusSkipped, resp.Step("a").Status)
	assert.Equal(t, "not requested", resp.Step("a").Message)
	assert.Equal(t, StepStatusSkipped, resp.Step("b").Status)
	assert.Contains(t, resp.Step("b").Message, "dependency a")
	assert.Equal(t, StepStatusCompleted, resp.Step("c").Status)
	assert.False(t, a.ran)
	assert.False(t, b.ran)
	assert.True(t, c.ran)
}

func TestManager_CancelledContext(t *testing.T) {
	a := newFakeStep("a")
	m, err := NewManager(nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.RegisterStage(a))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := m.Execute(ctx, baseRequest("in.csv", "out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorTypeCancellation, opErr.Type)
	assert.False(t, a.ran)
	assert.Equal(t, StepStatusPending, resp.Step("a").Status)
}

func TestManager_KeepsRequestID(t *testing.T) {
	m, err := NewManager(nil, nil, nil)
	require.NoError(t, err)

	req := baseRequest("in.csv", "out")
	req.ID = "run-42"
	resp, err := m.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "run-42", resp.ID)
	assert.Equal(t, OperationStatusCompleted, resp.Status)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(newFakeStep("a")))
	require.NoError(t, r.Register(newFakeStep("b", "a")))

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newFakeStep("")))
	assert.ErrorContains(t, r.Register(newFakeStep("a")), "already registered")
	assert.ErrorContains(t, r.Register(newFakeStep("c", "z")), "unregistered step z")

	assert.Equal(t, 2, r.Count())
	var ids []string
	for _, s := range r.List() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestNewPipeline_RegistrationFailureIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantMsg string
	}{
		{name: "duplicate step", steps: []Step{newFakeStep("a"), newFakeStep("a")}, wantMsg: "already registered"},
		{name: "dependency registered later", steps: []Step{newFakeStep("b", "a"), newFakeStep("a")}, wantMsg: "unregistered step a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := newPipeline(nil, nil, tt.steps...)
			require.Error(t, err)
			assert.Nil(t, m)

			var opErr *OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, ErrorTypeFatal, opErr.Type)
			assert.Empty(t, opErr.Step)
			assert.Contains(t, err.Error(), "failed to build pipeline: ")
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 1, apperrors.ExitCode(err))
		})
	}
}

func TestOperationError(t *testing.T) {
	cause := apperrors.MissingColumn("load", "in.csv", "price")
	err := NewExecutionError(StepIDLoad, cause)

	assert.Contains(t, err.Error(), "step load: execution failed")
	assert.Contains(t, err.Error(), "price")
	assert.ErrorIs(t, err, apperrors.ErrMissingColumn)
	assert.Equal(t, 5, apperrors.ExitCode(err))

	fatal := NewFatalError("setup failed", nil)
	assert.Equal(t, "setup failed", fatal.Error())

	var nilErr *OperationError
	assert.Equal(t, "unknown operation error", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())
}

func TestStepState_Lifecycle(t *testing.T) {
	s := NewStepState("x", "X")
	assert.Equal(t, StepStatusPending, s.Status)
	assert.Zero(t, s.Duration())

	s.Start()
	assert.Equal(t, StepStatusActive, s.Status)

	s.Fail(errors.New("nope"))
	assert.Equal(t, StepStatusFailed, s.Status)
	assert.Equal(t, "nope", s.ErrorMessage)
	require.NotNil(t, s.EndTime)
	assert.GreaterOrEqual(t, s.Duration().Nanoseconds(), int64(0))
}
