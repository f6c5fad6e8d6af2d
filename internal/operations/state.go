package operations

import (
	"time"

	"tschart/internal/charts"
	"tschart/pkg/contracts/domain"
)

// OperationStatus represents the overall run status
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationState is the complete state of one pipeline run. Steps hand data
// to each other through Table and Figures.
type OperationState struct {
	ID        string
	Status    OperationStatus
	StartTime time.Time
	EndTime   *time.Time
	Request   Request

	// Steps in execution order
	Steps []*StepState

	Table   *domain.Table
	Figures map[string][]*charts.Figure

	Error error
}

// NewOperationState creates a new operation state for req
func NewOperationState(req Request) *OperationState {
	return &OperationState{
		ID:        req.ID,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Request:   req,
		Figures:   make(map[string][]*charts.Figure),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// GetStage returns the state of a specific Step, or nil
func (p *OperationState) GetStage(stepID string) *StepState {
	for _, s := range p.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// Duration returns the duration of the operation execution
func (p *OperationState) Duration() time.Duration {
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}
