// Package events defines event types and structures for workflow progress
// and lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/fableworks/fableflow/pkg/models"
)

type EventType string

const (
	// Node progress events, forwarded verbatim to the UI transport.
	InitEvent         EventType = "init"
	WaitingEvent      EventType = "waiting"
	ProcessingEvent   EventType = "processing"
	SuccessEvent      EventType = "success"
	FailedEvent       EventType = "failed"
	NeedApprovalEvent EventType = "need_approval"
	PausedEvent       EventType = "paused"

	// Workflow lifecycle events.
	WorkflowStartedEvent   EventType = "workflow.started"
	StageCompletedEvent    EventType = "stage_completed"
	StageFailedEvent       EventType = "stage_failed"
	WorkflowPausedEvent    EventType = "workflow.paused"
	WorkflowResumedEvent   EventType = "workflow.resumed"
	WorkflowCompletedEvent EventType = "workflow_completed"
	WorkflowCancelledEvent EventType = "workflow.cancelled"
	WorkflowErrorEvent     EventType = "workflow_error"
)

// NodeStatus is the per-node execution indicator carried by progress events.
type NodeStatus string

const (
	NodeStatusWaiting    NodeStatus = "waiting"
	NodeStatusProcessing NodeStatus = "processing"
	NodeStatusSuccess    NodeStatus = "success"
	NodeStatusFailed     NodeStatus = "failed"
)

// Event is any record the orchestrator publishes to its sinks.
type Event interface {
	GetType() EventType
	GetWorkflowID() string
}

// NodeEvent is the progress record pushed to the UI. The transport layer
// forwards it verbatim; field names are part of the wire contract.
type NodeEvent struct {
	EventType      EventType  `json:"eventType"`
	NodeName       string     `json:"nodeName"`
	Status         NodeStatus `json:"status"`
	OutputSnapshot string     `json:"outputSnapshot"`
	Error          string     `json:"error,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	WorkflowID     string     `json:"workflowId"`
}

func (e NodeEvent) GetType() EventType {
	return e.EventType
}

func (e NodeEvent) GetWorkflowID() string {
	return e.WorkflowID
}

// NewNodeEvent builds a progress event for the given stage's node.
func NewNodeEvent(eventType EventType, workflowID string, stage models.Stage, status NodeStatus, snapshot string) NodeEvent {
	return NodeEvent{
		EventType:      eventType,
		NodeName:       stage.NodeName(),
		Status:         status,
		OutputSnapshot: snapshot,
		Timestamp:      time.Now().UTC(),
		WorkflowID:     workflowID,
	}
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func (e BaseEvent) GetWorkflowID() string {
	return e.WorkflowID
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type WorkflowStarted struct {
	BaseEvent

	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	ProjectID  string         `json:"project_id,omitempty"`
	StartStage models.Stage   `json:"start_stage"`
	InputData  map[string]any `json:"input_data,omitempty"`
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type StageCompleted struct {
	BaseEvent

	Stage      models.Stage   `json:"stage"`
	Output     map[string]any `json:"output,omitempty"`
	Summary    string         `json:"summary"`
	DurationMs int64          `json:"duration_ms"`
}

func (e StageCompleted) GetType() EventType {
	return StageCompletedEvent
}

type StageFailed struct {
	BaseEvent

	Stage      models.Stage `json:"stage"`
	Error      string       `json:"error"`
	Timeout    bool         `json:"timeout"`
	DurationMs int64        `json:"duration_ms"`
}

func (e StageFailed) GetType() EventType {
	return StageFailedEvent
}

type WorkflowPaused struct {
	BaseEvent

	PausedAtStage models.Stage `json:"paused_at_stage"`
	Reason        string       `json:"reason"`
}

func (e WorkflowPaused) GetType() EventType {
	return WorkflowPausedEvent
}

type WorkflowResumed struct {
	BaseEvent

	ResumedFromStage models.Stage `json:"resumed_from_stage"`
	UserFeedback     string       `json:"user_feedback,omitempty"`
}

func (e WorkflowResumed) GetType() EventType {
	return WorkflowResumedEvent
}

type WorkflowCompleted struct {
	BaseEvent

	StagesExecuted int   `json:"stages_executed"`
	DurationMs     int64 `json:"duration_ms"`
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

type WorkflowCancelled struct {
	BaseEvent

	CancelledAtStage models.Stage `json:"cancelled_at_stage"`
}

func (e WorkflowCancelled) GetType() EventType {
	return WorkflowCancelledEvent
}

// WorkflowError signals an unexpected internal failure. It terminates the
// event stream so consumers never hang waiting for more progress.
type WorkflowError struct {
	BaseEvent

	Error string `json:"error"`
}

func (e WorkflowError) GetType() EventType {
	return WorkflowErrorEvent
}
