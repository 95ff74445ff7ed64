package retention

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/persistence"
	"github.com/fableworks/fableflow/pkg/persistence/file"
)

func saveState(t *testing.T, store persistence.StateStore, id string, status models.WorkflowStatus, updatedAt time.Time) {
	t.Helper()

	require.NoError(t, store.Save(t.Context(), &models.WorkflowState{
		WorkflowID:   id,
		UserID:       "u1",
		SessionID:    "s1",
		Status:       status,
		CurrentStage: models.StageStoryOutline,
		Config:       models.DefaultWorkflowConfig(),
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}))
}

func TestSweep_RemovesExpiredState(t *testing.T) {
	store := file.NewStore(t.TempDir())
	sweeper := NewSweeper(store, slog.Default(), DefaultRetention)

	now := time.Now().UTC()
	sweeper.now = func() time.Time { return now }

	saveState(t, store, "wf-expired-completed", models.WorkflowStatusCompleted, now.Add(-8*24*time.Hour))
	saveState(t, store, "wf-expired-waiting", models.WorkflowStatusWaitingForUser, now.Add(-8*24*time.Hour))
	saveState(t, store, "wf-fresh-completed", models.WorkflowStatusCompleted, now.Add(-time.Hour))
	saveState(t, store, "wf-fresh-waiting", models.WorkflowStatusWaitingForUser, now.Add(-time.Hour))

	removed, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Get(t.Context(), "wf-expired-completed")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
	_, err = store.Get(t.Context(), "wf-expired-waiting")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	_, err = store.Get(t.Context(), "wf-fresh-completed")
	assert.NoError(t, err)
	_, err = store.Get(t.Context(), "wf-fresh-waiting")
	assert.NoError(t, err)
}

func TestSweep_EmptyStore(t *testing.T) {
	store := file.NewStore(t.TempDir())
	sweeper := NewSweeper(store, slog.Default(), DefaultRetention)

	removed, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweeper_StartStop(t *testing.T) {
	store := file.NewStore(t.TempDir())
	sweeper := NewSweeper(store, slog.Default(), time.Hour)

	require.NoError(t, sweeper.Start(t.Context(), "@hourly"))
	sweeper.Stop()
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	store := file.NewStore(t.TempDir())
	sweeper := NewSweeper(store, slog.Default(), time.Hour)

	assert.Error(t, sweeper.Start(t.Context(), "not a cron spec"))
}
