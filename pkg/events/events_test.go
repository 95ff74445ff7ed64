package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/fableflow/pkg/models"
)

func TestNewNodeEvent(t *testing.T) {
	event := NewNodeEvent(WaitingEvent, "wf-1", models.StageStoryOutline, NodeStatusWaiting, "")

	assert.Equal(t, WaitingEvent, event.GetType())
	assert.Equal(t, "wf-1", event.GetWorkflowID())
	assert.Equal(t, "story_outline", event.NodeName)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNodeEvent_WireShape(t *testing.T) {
	event := NewNodeEvent(SuccessEvent, "wf-1", models.StageCharacterProfiles, NodeStatusSuccess, "5个角色")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Field names are the wire contract consumed by the UI.
	assert.Equal(t, "success", decoded["eventType"])
	assert.Equal(t, "character_profiles", decoded["nodeName"])
	assert.Equal(t, "success", decoded["status"])
	assert.Equal(t, "5个角色", decoded["outputSnapshot"])
	assert.Equal(t, "wf-1", decoded["workflowId"])
	assert.NotContains(t, decoded, "error", "empty error is omitted")
	assert.Contains(t, decoded, "timestamp")
}

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(WorkflowCompletedEvent, "wf-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, WorkflowCompletedEvent, base.Type)
	assert.Equal(t, "wf-1", base.GetWorkflowID())
}

func TestDomainEventTypes(t *testing.T) {
	assert.Equal(t, StageCompletedEvent, StageCompleted{}.GetType())
	assert.Equal(t, StageFailedEvent, StageFailed{}.GetType())
	assert.Equal(t, WorkflowPausedEvent, WorkflowPaused{}.GetType())
	assert.Equal(t, WorkflowCompletedEvent, WorkflowCompleted{}.GetType())
	assert.Equal(t, WorkflowErrorEvent, WorkflowError{}.GetType())
}
