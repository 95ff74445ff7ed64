// Package web provides the HTTP surface for workflow runs: start, resume,
// cancel, inspect, and a server-sent-events stream of progress.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fableworks/fableflow/pkg/eventbus"
	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/orchestrator"
	"github.com/fableworks/fableflow/pkg/persistence"
)

type Handlers struct {
	orchestrator *orchestrator.Orchestrator
	broker       *eventbus.Broker
	store        persistence.StateStore
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewHandlers(
	orch *orchestrator.Orchestrator,
	broker *eventbus.Broker,
	store persistence.StateStore,
	validate *validator.Validate,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		orchestrator: orch,
		broker:       broker,
		store:        store,
		validate:     validate,
		logger:       logger.With("module", "web"),
	}
}

// StartWorkflow accepts a run and executes it in the background. The
// response carries the workflow ID so the caller can attach to the events
// stream before the first stage completes.
func (h *Handlers) StartWorkflow(c fiber.Ctx) error {
	var req StartWorkflowRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	// Reject precondition failures here; once the run is accepted the
	// client only hears from the events stream.
	if text, ok := req.Input["input"].(string); !ok || strings.TrimSpace(text) == "" {
		return badRequest(c, "Input text is required")
	}

	startStage := models.Stage(req.StartStage)
	if req.StartStage != "" && startStage.Index() < 0 {
		return badRequest(c, "Unknown start stage: "+req.StartStage)
	}

	stopAtStage := models.Stage(req.StopAtStage)
	if req.StopAtStage != "" && stopAtStage.Index() < 0 {
		return badRequest(c, "Unknown stop stage: "+req.StopAtStage)
	}

	workflowID := uuid.New().String()

	startReq := orchestrator.StartRequest{
		WorkflowID:  workflowID,
		Input:       req.Input,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		ProjectID:   req.ProjectID,
		StartStage:  startStage,
		StopAtStage: stopAtStage,
		Config:      req.Config,
	}

	// The run outlives the HTTP request; progress flows through the
	// events stream.
	go func() {
		if _, err := h.orchestrator.StartWorkflow(context.Background(), startReq); err != nil {
			h.logger.Error("Workflow start failed", "workflow_id", workflowID, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(StartWorkflowResponse{
		WorkflowID: workflowID,
		EventsURL:  "/workflows/" + workflowID + "/events",
	})
}

// ResumeWorkflow continues a paused run with optional feedback.
func (h *Handlers) ResumeWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ResumeWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	progress, err := h.orchestrator.GetProgress(c.Context(), workflowID)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	if !progress.CanResume {
		return conflict(c, "workflow cannot be resumed in status "+string(progress.Status))
	}

	resumeReq := orchestrator.ResumeRequest{
		WorkflowID:   workflowID,
		UserFeedback: req.UserFeedback,
		AutoAdvance:  req.AutoAdvance,
	}

	go func() {
		if _, err := h.orchestrator.Resume(context.Background(), resumeReq); err != nil {
			h.logger.Error("Workflow resume failed", "workflow_id", workflowID, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(StartWorkflowResponse{
		WorkflowID: workflowID,
		EventsURL:  "/workflows/" + workflowID + "/events",
	})
}

// CancelWorkflow stops a running or waiting workflow.
func (h *Handlers) CancelWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	cancelled, err := h.orchestrator.Cancel(c.Context(), workflowID)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.JSON(CancelWorkflowResponse{Cancelled: cancelled})
}

// DeleteWorkflow removes persisted state unconditionally.
func (h *Handlers) DeleteWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.orchestrator.DeleteWorkflow(c.Context(), workflowID); err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetProgress returns the derived progress view of a run.
func (h *Handlers) GetProgress(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	progress, err := h.orchestrator.GetProgress(c.Context(), workflowID)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.JSON(progress)
}

// ListWorkflows returns active workflow IDs, optionally filtered by user.
func (h *Handlers) ListWorkflows(c fiber.Ctx) error {
	workflowIDs, err := h.orchestrator.ListActiveWorkflows(c.Context(), c.Query("user_id"))
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.JSON(ListWorkflowsResponse{WorkflowIDs: workflowIDs})
}

// HealthCheck reports storage health.
func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
