package operations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	apperrors "tschart/internal/errors"
	"tschart/internal/infrastructure"
)

// Manager runs the registered steps of a pipeline in order
type Manager struct {
	registry *Registry
	tracer   *OperationTracer
	logger   *slog.Logger
}

// NewManager creates a manager over registry. A nil registry starts empty
// and a nil tracer records on the global providers.
func NewManager(registry *Registry, tracer *OperationTracer, logger *slog.Logger) (*Manager, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		t, err := NewOperationTracer(nil)
		if err != nil {
			return nil, err
		}
		tracer = t
	}
	return &Manager{
		registry: registry,
		tracer:   tracer,
		logger:   logger,
	}, nil
}

// NewPipeline wires the load, smoothing and render steps into a manager
func NewPipeline(loader TableLoader, renderer ChartRenderer, tracer *OperationTracer, logger *slog.Logger) (*Manager, error) {
	return newPipeline(tracer, logger,
		NewLoadStep(loader),
		NewRollingMeanStep(),
		NewEWMStep(),
		NewRenderStep(StepIDRenderRollingMean, StepNameRenderRollingMean, FamilyRollingMean, StepIDRollingMean, renderer),
		NewRenderStep(StepIDRenderEWMMean, StepNameRenderEWMMean, FamilyEWMMean, StepIDEWMMean, renderer),
	)
}

// newPipeline registers steps in execution order. Failures are fatal since
// no step has run yet.
func newPipeline(tracer *OperationTracer, logger *slog.Logger, steps ...Step) (*Manager, error) {
	registry := NewRegistry()
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return nil, NewFatalError("failed to build pipeline", err)
		}
	}
	m, err := NewManager(registry, tracer, logger)
	if err != nil {
		return nil, NewFatalError("failed to build pipeline", err)
	}
	return m, nil
}

// RegisterStage registers a Step with the pipeline
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// Execute runs the pipeline for req. The response is always returned, also
// on failure, so callers can report the per-step outcome and any charts
// written before the failing step.
func (m *Manager) Execute(ctx context.Context, req Request) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	ctx = infrastructure.EnsureTraceID(ctx)

	steps := m.registry.List()
	state := NewOperationState(req)
	for _, step := range steps {
		state.Steps = append(state.Steps, NewStepState(step.ID(), step.Name()))
	}

	ctx, span := m.tracer.TraceOperationExecution(ctx, req)
	defer span.End()

	logger := m.logger.With(slog.String("pipeline_id", req.ID))
	logger.InfoContext(ctx, "pipeline started",
		slog.String("input_path", req.InputPath),
		slog.String("output_dir", req.OutputDir),
		slog.Int("steps", len(steps)))

	state.Start()
	err := validateRequest(req)
	if err == nil {
		err = m.executeSequential(ctx, state, steps, logger)
	}

	if err != nil {
		state.Fail(err)
		logger.ErrorContext(ctx, "pipeline failed",
			slog.String("error", err.Error()),
			slog.String("kind", string(apperrors.KindOf(err))),
			slog.Duration("duration", state.Duration()))
	} else {
		state.Complete()
		logger.InfoContext(ctx, "pipeline completed",
			slog.Int("charts_written", len(m.createResponse(state).ChartPaths())),
			slog.Duration("duration", state.Duration()))
	}
	m.tracer.RecordOperationCompletion(ctx, span, state)

	return m.createResponse(state), err
}

// validateRequest checks the fields every run needs
func validateRequest(req Request) error {
	required := []struct{ name, value string }{
		{"input path", req.InputPath},
		{"output directory", req.OutputDir},
		{"date column", req.DateColumn},
		{"value column", req.ValueColumn},
	}
	for _, r := range required {
		if r.value == "" {
			return NewValidationError("", apperrors.InvalidParameter("pipeline", r.name+" is required"))
		}
	}
	return nil
}

// executeSequential runs steps one at a time. The first failure aborts the
// run: steps depending on the failed one are skipped and the rest stay
// pending.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step, logger *slog.Logger) error {
	for _, step := range steps {
		stepState := state.GetStage(step.ID())

		if err := ctx.Err(); err != nil {
			return NewCancellationError(step.ID(), err)
		}

		if reason := step.SkipReason(state); reason != "" {
			m.skip(ctx, state.ID, stepState, reason, logger)
			continue
		}
		if dep := m.unmetDependency(state, step); dep != "" {
			m.skip(ctx, state.ID, stepState, fmt.Sprintf("dependency %s did not complete", dep), logger)
			continue
		}

		if err := m.executeStage(ctx, state, step, logger); err != nil {
			m.skipDependentStages(state, steps, step.ID())
			return err
		}
	}
	return nil
}

// executeStage runs a single step with its own span
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step, logger *slog.Logger) error {
	stepState := state.GetStage(step.ID())
	ctx, span := m.tracer.TraceStageExecution(ctx, state.ID, step.ID())
	defer span.End()

	stepLogger := logger.With(slog.String("step", step.ID()))
	stepState.Start()

	var opErr *OperationError
	if err := step.Validate(state); err != nil {
		opErr = NewValidationError(step.ID(), err)
	} else if err := step.Execute(ctx, state); err != nil {
		opErr = NewExecutionError(step.ID(), err)
	}

	if opErr != nil {
		stepState.Fail(opErr.Cause)
		m.tracer.RecordStageCompletion(ctx, span, stepState)
		stepLogger.ErrorContext(ctx, "step failed",
			slog.String("error", opErr.Cause.Error()),
			slog.Duration("duration", stepState.Duration()))
		return opErr
	}

	stepState.Complete()
	m.tracer.RecordStageCompletion(ctx, span, stepState)
	stepLogger.InfoContext(ctx, "step completed",
		slog.Any("metadata", stepState.Metadata),
		slog.Duration("duration", stepState.Duration()))
	return nil
}

func (m *Manager) skip(ctx context.Context, operationID string, stepState *StepState, reason string, logger *slog.Logger) {
	stepState.Skip(reason)
	_, span := m.tracer.TraceStageExecution(ctx, operationID, stepState.ID)
	m.tracer.RecordStageCompletion(ctx, span, stepState)
	span.End()
	logger.DebugContext(ctx, "step skipped",
		slog.String("step", stepState.ID),
		slog.String("reason", reason))
}

// skipDependentStages marks every step downstream of failedStageID as skipped
func (m *Manager) skipDependentStages(state *OperationState, steps []Step, failedStageID string) {
	blocked := map[string]bool{failedStageID: true}
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if blocked[dep] {
				state.GetStage(step.ID()).Skip(fmt.Sprintf("dependency %s failed", failedStageID))
				blocked[step.ID()] = true
				break
			}
		}
	}
}

// unmetDependency returns the first dependency of step that did not complete
func (m *Manager) unmetDependency(state *OperationState, step Step) string {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil || depState.Status != StepStatusCompleted {
			return dep
		}
	}
	return ""
}

// createResponse builds the response from the final state
func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	resp := &OperationResponse{
		ID:       state.ID,
		Status:   state.Status,
		Duration: state.Duration(),
		Steps:    state.Steps,
		Table:    state.Table,
		Figures:  state.Figures,
	}
	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	return resp
}
