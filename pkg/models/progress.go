package models

// Progress is a derived, read-only view of a workflow run. Computing it
// never mutates the underlying state.
type Progress struct {
	WorkflowID         string         `json:"workflow_id"`
	Status             WorkflowStatus `json:"status"`
	CurrentStage       Stage          `json:"current_stage"`
	CurrentStageLabel  string         `json:"current_stage_label"`
	CurrentStageIndex  int            `json:"current_stage_index"`
	TotalStages        int            `json:"total_stages"`
	ProgressPercentage float64        `json:"progress_percentage"`
	CompletedStages    []string       `json:"completed_stages"`
	CanResume          bool           `json:"can_resume"`
}

// NewProgress derives the progress view from a workflow state.
func NewProgress(state *WorkflowState) Progress {
	total := TotalStages()

	index := state.CurrentStage.Index()
	if state.CurrentStage == StageCompleted {
		index = total
	}
	if index < 0 {
		index = len(state.CompletedStages())
	}

	completed := make([]string, 0, len(state.StageResults))
	for _, stage := range state.CompletedStages() {
		completed = append(completed, string(stage))
	}

	return Progress{
		WorkflowID:         state.WorkflowID,
		Status:             state.Status,
		CurrentStage:       state.CurrentStage,
		CurrentStageLabel:  state.CurrentStage.Label(),
		CurrentStageIndex:  index,
		TotalStages:        total,
		ProgressPercentage: float64(index) / float64(total) * 100,
		CompletedStages:    completed,
		CanResume: state.Status == WorkflowStatusWaitingForUser ||
			state.Status == WorkflowStatusPaused ||
			state.Status == WorkflowStatusInProgress,
	}
}
