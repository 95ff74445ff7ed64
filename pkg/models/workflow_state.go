package models

import (
	"strings"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusInitialized    WorkflowStatus = "initialized"
	WorkflowStatusInProgress     WorkflowStatus = "in_progress"
	WorkflowStatusWaitingForUser WorkflowStatus = "waiting_for_user"
	WorkflowStatusPaused         WorkflowStatus = "paused"
	WorkflowStatusCompleted      WorkflowStatus = "completed"
	WorkflowStatusFailed         WorkflowStatus = "failed"
	WorkflowStatusCancelled      WorkflowStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// WorkflowConfig holds the per-run tunables.
type WorkflowConfig struct {
	ChunkSize    int    `json:"chunk_size"`
	OutputFormat string `json:"output_format"`
	AutoAdvance  bool   `json:"auto_advance"`
}

// DefaultWorkflowConfig returns the config applied when a run supplies none.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		ChunkSize:    2000,
		OutputFormat: "markdown",
		AutoAdvance:  true,
	}
}

// WorkflowState is the full persisted record of one pipeline run. It is
// mutated exclusively by the orchestrator; external callers only read it.
type WorkflowState struct {
	WorkflowID   string                  `json:"workflow_id"          validate:"required"`
	ProjectID    string                  `json:"project_id,omitempty"`
	UserID       string                  `json:"user_id"              validate:"required"`
	SessionID    string                  `json:"session_id"           validate:"required"`
	Status       WorkflowStatus          `json:"status"`
	CurrentStage Stage                   `json:"current_stage"`
	InputData    map[string]any          `json:"input_data"`
	StageResults map[Stage]*StageResult  `json:"stage_results"`
	Config       WorkflowConfig          `json:"config"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
}

// Touch bumps UpdatedAt. The timestamp strictly increases even when two
// mutations land within clock resolution.
func (w *WorkflowState) Touch() {
	now := time.Now().UTC()
	if !now.After(w.UpdatedAt) {
		now = w.UpdatedAt.Add(time.Nanosecond)
	}

	w.UpdatedAt = now
}

// Result returns the stage result for the given stage, if any.
func (w *WorkflowState) Result(stage Stage) (*StageResult, bool) {
	result, ok := w.StageResults[stage]

	return result, ok
}

// SetResult stores the stage result under its stage key.
func (w *WorkflowState) SetResult(result *StageResult) {
	if w.StageResults == nil {
		w.StageResults = make(map[Stage]*StageResult)
	}

	w.StageResults[result.Stage] = result
}

// CompletedStages returns the stages with a completed result, in canonical
// execution order.
func (w *WorkflowState) CompletedStages() []Stage {
	var completed []Stage

	for _, stage := range stageOrder {
		if result, ok := w.StageResults[stage]; ok && result.Status == StageStatusCompleted {
			completed = append(completed, stage)
		}
	}

	return completed
}

// FeedbackLedger returns the user feedback of every completed stage, in
// stage-execution order, oldest first. Empty feedback entries are skipped.
func (w *WorkflowState) FeedbackLedger() []string {
	var ledger []string

	for _, stage := range stageOrder {
		result, ok := w.StageResults[stage]
		if !ok || result.Status != StageStatusCompleted {
			continue
		}

		if feedback := strings.TrimSpace(result.UserFeedback); feedback != "" {
			ledger = append(ledger, feedback)
		}
	}

	return ledger
}

// SourceText returns the raw input text the pipeline operates on.
func (w *WorkflowState) SourceText() string {
	if text, ok := w.InputData["input"].(string); ok {
		return text
	}

	return ""
}
