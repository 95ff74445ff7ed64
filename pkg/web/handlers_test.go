package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/fableflow/pkg/eventbus"
	"github.com/fableworks/fableflow/pkg/events"
	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/orchestrator"
	"github.com/fableworks/fableflow/pkg/persistence"
	"github.com/fableworks/fableflow/pkg/persistence/file"
)

type testAPI struct {
	app    *fiber.App
	store  persistence.StateStore
	broker *eventbus.Broker
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := file.NewStore(t.TempDir())
	broker := eventbus.NewBroker()

	orch := orchestrator.New(store, broker, slog.Default(), orchestrator.Options{
		StageTimeout: 5 * time.Second,
	})
	for _, stage := range models.StageOrder() {
		orch.Register(stage, orchestrator.HandlerFunc(
			func(_ context.Context, _ orchestrator.StageInput) (map[string]any, error) {
				return map[string]any{"stage": string(stage)}, nil
			}))
	}

	api := NewAPI(slog.Default(), orch, broker, store)

	return &testAPI{app: api.App(), store: store, broker: broker}
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func awaitStatus(t *testing.T, store persistence.StateStore, workflowID string, status models.WorkflowStatus) *models.WorkflowState {
	t.Helper()

	var state *models.WorkflowState

	require.Eventually(t, func() bool {
		s, err := store.Get(t.Context(), workflowID)
		if err != nil {
			return false
		}

		state = s

		return s.Status == status
	}, 3*time.Second, 10*time.Millisecond)

	return state
}

func TestAPI_RootEndpoint(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "FableFlow API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_StartWorkflow_PausesAtApprovalGate(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前，有一座山。"},
		UserID:    "u1",
		SessionID: "s1",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[StartWorkflowResponse](t, resp)
	assert.NotEmpty(t, accepted.WorkflowID)
	assert.Equal(t, "/workflows/"+accepted.WorkflowID+"/events", accepted.EventsURL)

	state := awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)
	assert.Equal(t, models.StageStoryOutline, state.CurrentStage)
}

func TestAPI_StartWorkflow_ValidationError(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input: map[string]any{"input": "素材"},
		// user_id and session_id missing
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StartWorkflow_BlankInputText(t *testing.T) {
	api := setupTestAPI(t)

	// A run that could never start must be rejected up front, not accepted
	// with an events URL that will only ever 404.
	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "   "},
		UserID:    "u1",
		SessionID: "s1",
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StartWorkflow_UnknownStage(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:      map[string]any{"input": "素材"},
		UserID:     "u1",
		SessionID:  "s1",
		StartStage: "nonexistent_stage",
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ResumeWorkflow_RunsToCompletion(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前"},
		UserID:    "u1",
		SessionID: "s1",
	})
	accepted := decodeBody[StartWorkflowResponse](t, resp)

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)

	resumeResp := postJSON(t, api.app, "/workflows/"+accepted.WorkflowID+"/resume", ResumeWorkflowRequest{
		UserFeedback: "大纲再紧凑一点",
	})
	require.Equal(t, http.StatusAccepted, resumeResp.StatusCode)

	_ = resumeResp.Body.Close()

	state := awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusCompleted)

	outline, ok := state.Result(models.StageStoryOutline)
	require.True(t, ok)
	assert.Equal(t, "大纲再紧凑一点", outline.UserFeedback)
}

func TestAPI_ResumeWorkflow_Conflict(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前"},
		UserID:    "u1",
		SessionID: "s1",
	})
	accepted := decodeBody[StartWorkflowResponse](t, resp)

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)

	resumeResp := postJSON(t, api.app, "/workflows/"+accepted.WorkflowID+"/resume", nil)
	_ = resumeResp.Body.Close()

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusCompleted)

	// A completed run cannot be resumed again.
	again := postJSON(t, api.app, "/workflows/"+accepted.WorkflowID+"/resume", nil)

	defer func() { _ = again.Body.Close() }()

	assert.Equal(t, http.StatusConflict, again.StatusCode)
}

func TestAPI_ResumeWorkflow_NotFound(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows/missing/resume", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CancelWorkflow(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前"},
		UserID:    "u1",
		SessionID: "s1",
	})
	accepted := decodeBody[StartWorkflowResponse](t, resp)

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)

	cancelResp := postJSON(t, api.app, "/workflows/"+accepted.WorkflowID+"/cancel", nil)
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)

	cancelled := decodeBody[CancelWorkflowResponse](t, cancelResp)
	assert.True(t, cancelled.Cancelled)

	// Cancelling again is a no-op.
	again := postJSON(t, api.app, "/workflows/"+accepted.WorkflowID+"/cancel", nil)
	cancelledAgain := decodeBody[CancelWorkflowResponse](t, again)
	assert.False(t, cancelledAgain.Cancelled)
}

func TestAPI_GetProgress(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前"},
		UserID:    "u1",
		SessionID: "s1",
	})
	accepted := decodeBody[StartWorkflowResponse](t, resp)

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)

	req := httptest.NewRequest(http.MethodGet, "/workflows/"+accepted.WorkflowID+"/progress", nil)
	progressResp, err := api.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, progressResp.StatusCode)

	progress := decodeBody[models.Progress](t, progressResp)
	assert.Equal(t, models.StageStoryOutline, progress.CurrentStage)
	assert.True(t, progress.CanResume)
}

func TestAPI_GetProgress_NotFound(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing/progress", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListWorkflows(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前"},
		UserID:    "u1",
		SessionID: "s1",
	})
	accepted := decodeBody[StartWorkflowResponse](t, resp)

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)

	req := httptest.NewRequest(http.MethodGet, "/workflows?user_id=u1", nil)
	listResp, err := api.app.Test(req)
	require.NoError(t, err)

	list := decodeBody[ListWorkflowsResponse](t, listResp)
	assert.Contains(t, list.WorkflowIDs, accepted.WorkflowID)

	req = httptest.NewRequest(http.MethodGet, "/workflows?user_id=someone-else", nil)
	otherResp, err := api.app.Test(req)
	require.NoError(t, err)

	otherList := decodeBody[ListWorkflowsResponse](t, otherResp)
	assert.NotContains(t, otherList.WorkflowIDs, accepted.WorkflowID)
}

func TestAPI_DeleteWorkflow(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/workflows", StartWorkflowRequest{
		Input:     map[string]any{"input": "很久很久以前"},
		UserID:    "u1",
		SessionID: "s1",
	})
	accepted := decodeBody[StartWorkflowResponse](t, resp)

	awaitStatus(t, api.store, accepted.WorkflowID, models.WorkflowStatusWaitingForUser)

	req := httptest.NewRequest(http.MethodDelete, "/workflows/"+accepted.WorkflowID, nil)
	deleteResp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = deleteResp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)

	_, err = api.store.Get(t.Context(), accepted.WorkflowID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestAPI_StreamEvents(t *testing.T) {
	api := setupTestAPI(t)

	state := &models.WorkflowState{
		WorkflowID:   "wf-stream",
		UserID:       "u1",
		SessionID:    "s1",
		Status:       models.WorkflowStatusInProgress,
		CurrentStage: models.StageStoryOutline,
		Config:       models.DefaultWorkflowConfig(),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, api.store.Save(t.Context(), state))

	// The subscription happens inside the request handler; publish until the
	// stream has picked the events up and closed itself.
	go func() {
		for i := 0; i < 50; i++ {
			_ = api.broker.Publish(context.Background(), events.NewNodeEvent(
				events.ProcessingEvent, "wf-stream", models.StageStoryOutline, events.NodeStatusProcessing, ""))
			_ = api.broker.Publish(context.Background(), events.WorkflowCompleted{
				BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, "wf-stream"),
			})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-stream/events", nil)
	resp, err := api.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	frames := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.NotEmpty(t, frames)

	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "))
	}

	assert.Contains(t, string(body), `"workflowId":"wf-stream"`)
	assert.Contains(t, string(body), "workflow_completed")
}

func TestAPI_StreamEvents_NotFound(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing/events", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
