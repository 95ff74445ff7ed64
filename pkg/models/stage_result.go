package models

import "time"

// StageStatus defines the possible states of a single stage execution.
type StageStatus string

const (
	StageStatusInProgress StageStatus = "in_progress"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
)

// StageResult records the outcome of executing one stage once.
type StageResult struct {
	Stage        Stage          `json:"stage"`
	Status       StageStatus    `json:"status"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	UserFeedback string         `json:"user_feedback,omitempty"`
}

// NewStageResult returns an in-progress result for the given stage.
func NewStageResult(stage Stage) *StageResult {
	return &StageResult{
		Stage:     stage,
		Status:    StageStatusInProgress,
		StartedAt: time.Now().UTC(),
	}
}

// Complete marks the result as completed with the handler output.
func (r *StageResult) Complete(output map[string]any) {
	now := time.Now().UTC()
	r.Status = StageStatusCompleted
	r.Output = output
	r.CompletedAt = &now
}

// Fail marks the result as failed. Output stays empty on failure.
func (r *StageResult) Fail(err error) {
	now := time.Now().UTC()
	r.Status = StageStatusFailed
	r.Error = err.Error()
	r.CompletedAt = &now
}
