package web

import "github.com/fableworks/fableflow/pkg/models"

// StartWorkflowRequest is the body of POST /workflows.
type StartWorkflowRequest struct {
	Input       map[string]any         `json:"input"         validate:"required"`
	UserID      string                 `json:"user_id"       validate:"required"`
	SessionID   string                 `json:"session_id"    validate:"required"`
	ProjectID   string                 `json:"project_id"`
	StartStage  string                 `json:"start_stage"`
	StopAtStage string                 `json:"stop_at_stage"`
	Config      *models.WorkflowConfig `json:"config"`
}

// StartWorkflowResponse acknowledges an accepted run. Execution continues
// in the background; progress arrives on the events stream.
type StartWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	EventsURL  string `json:"events_url"`
}

// ResumeWorkflowRequest is the body of POST /workflows/:id/resume.
type ResumeWorkflowRequest struct {
	UserFeedback string `json:"user_feedback"`
	AutoAdvance  *bool  `json:"auto_advance"`
}

// CancelWorkflowResponse reports whether the cancel took effect.
type CancelWorkflowResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ListWorkflowsResponse carries the active workflow IDs.
type ListWorkflowsResponse struct {
	WorkflowIDs []string `json:"workflow_ids"`
}
