package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/persistence"
)

func newState(id, userID string, status models.WorkflowStatus) *models.WorkflowState {
	return &models.WorkflowState{
		WorkflowID:   id,
		UserID:       userID,
		SessionID:    "s1",
		Status:       status,
		CurrentStage: models.FirstStage(),
		InputData:    map[string]any{"input": "故事文本"},
		Config:       models.DefaultWorkflowConfig(),
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := NewStore(t.TempDir())

	state := newState("wf-1", "u1", models.WorkflowStatusInProgress)
	result := models.NewStageResult(models.StageInputValidation)
	result.Complete(map[string]any{"valid": true})
	state.SetResult(result)

	require.NoError(t, store.Save(t.Context(), state))

	loaded, err := store.Get(t.Context(), "wf-1")
	require.NoError(t, err)

	assert.Equal(t, "wf-1", loaded.WorkflowID)
	assert.Equal(t, "u1", loaded.UserID)
	assert.Equal(t, models.WorkflowStatusInProgress, loaded.Status)
	assert.Equal(t, "故事文本", loaded.SourceText())

	stored, ok := loaded.Result(models.StageInputValidation)
	require.True(t, ok)
	assert.Equal(t, models.StageStatusCompleted, stored.Status)
}

func TestStore_GetNotFound(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Get(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(t.Context(), newState("wf-1", "u1", models.WorkflowStatusInProgress)))
	require.NoError(t, store.Delete(t.Context(), "wf-1"))

	_, err := store.Get(t.Context(), "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	// Deleting a missing record is a no-op.
	assert.NoError(t, store.Delete(t.Context(), "wf-1"))
}

func TestStore_ListActive(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(t.Context(), newState("wf-1", "u1", models.WorkflowStatusWaitingForUser)))
	require.NoError(t, store.Save(t.Context(), newState("wf-2", "u2", models.WorkflowStatusInProgress)))
	require.NoError(t, store.Save(t.Context(), newState("wf-3", "u1", models.WorkflowStatusCompleted)))

	all, err := store.ListActive(t.Context(), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wf-1", "wf-2"}, all)

	mine, err := store.ListActive(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1"}, mine)
}

func TestStore_ListAll(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(t.Context(), newState("wf-1", "u1", models.WorkflowStatusInProgress)))
	require.NoError(t, store.Save(t.Context(), newState("wf-2", "u1", models.WorkflowStatusCompleted)))

	all, err := store.ListAll(t.Context())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wf-1", "wf-2"}, all, "terminal runs are included")
}

func TestStore_ListActiveEmpty(t *testing.T) {
	store := NewStore(t.TempDir())

	active, err := store.ListActive(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, active)
}
