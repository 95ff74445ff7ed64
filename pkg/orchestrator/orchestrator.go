package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fableworks/fableflow/pkg/eventbus"
	"github.com/fableworks/fableflow/pkg/events"
	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/persistence"
)

// DefaultStageTimeout bounds a single stage handler call.
const DefaultStageTimeout = 300 * time.Second

// feedbackHeader delimits the accumulated feedback ledger appended to each
// stage's derived input.
const feedbackHeader = "--- 用户历史反馈 ---"

// Options tunes an Orchestrator.
type Options struct {
	// StageTimeout bounds each handler call. Zero means DefaultStageTimeout.
	StageTimeout time.Duration

	// ApprovalGates are stages after which the run always pauses for user
	// approval, regardless of auto-advance. Nil means the default gate
	// after the story outline; an empty non-nil slice disables gating.
	ApprovalGates []models.Stage
}

// Orchestrator owns every mutation of workflow state. One run executes as a
// single sequential loop; distinct runs may execute concurrently without
// coordination. Callers must not issue concurrent Resume calls for the same
// workflow.
type Orchestrator struct {
	store         persistence.StateStore
	sink          eventbus.Sink
	handlers      map[models.Stage]StageHandler
	validate      *validator.Validate
	logger        *slog.Logger
	stageTimeout  time.Duration
	approvalGates map[models.Stage]bool
}

// New creates an orchestrator with explicit dependencies.
func New(store persistence.StateStore, sink eventbus.Sink, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}

	if opts.ApprovalGates == nil {
		opts.ApprovalGates = []models.Stage{models.StageStoryOutline}
	}

	gates := make(map[models.Stage]bool, len(opts.ApprovalGates))
	for _, stage := range opts.ApprovalGates {
		gates[stage] = true
	}

	if sink == nil {
		sink = eventbus.NullSink{}
	}

	return &Orchestrator{
		store:         store,
		sink:          sink,
		handlers:      make(map[models.Stage]StageHandler),
		validate:      validator.New(),
		logger:        logger.With("module", "orchestrator"),
		stageTimeout:  opts.StageTimeout,
		approvalGates: gates,
	}
}

// Register binds a handler to a stage. Handlers are registered at
// construction time, before any run starts.
func (o *Orchestrator) Register(stage models.Stage, handler StageHandler) {
	o.handlers[stage] = handler
}

// StartRequest carries everything needed to begin a run.
type StartRequest struct {
	Input     map[string]any
	UserID    string `validate:"required"`
	SessionID string `validate:"required"`
	ProjectID string

	// WorkflowID is allocated when empty. Callers that need the ID before
	// the run segment finishes (e.g. to subscribe for events) may supply it.
	WorkflowID string

	// StartStage defaults to the first stage of the pipeline.
	StartStage models.Stage

	// StopAtStage pauses the run after the named stage completes.
	StopAtStage models.Stage

	Config *models.WorkflowConfig
}

// StartWorkflow validates the request, creates and persists the run, and
// executes stages until it pauses, fails, or completes. Precondition
// failures return an error before any state is created. Stage failures are
// reported through the returned state and the event stream, not as an error.
func (o *Orchestrator) StartWorkflow(ctx context.Context, req StartRequest) (state *models.WorkflowState, err error) {
	defer o.recoverToEvent(ctx, req.WorkflowID, &err)

	if err := o.validateStart(&req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state = &models.WorkflowState{
		WorkflowID:   req.WorkflowID,
		ProjectID:    req.ProjectID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		Status:       models.WorkflowStatusInProgress,
		CurrentStage: req.StartStage,
		InputData:    req.Input,
		StageResults: make(map[models.Stage]*models.StageResult),
		Config:       models.DefaultWorkflowConfig(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Config != nil {
		state.Config = *req.Config
	}

	o.persist(ctx, state)

	o.emit(ctx, events.NewNodeEvent(events.InitEvent, state.WorkflowID, req.StartStage, events.NodeStatusWaiting, ""))
	o.emit(ctx, events.WorkflowStarted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowStartedEvent, state.WorkflowID),
		UserID:     state.UserID,
		SessionID:  state.SessionID,
		ProjectID:  state.ProjectID,
		StartStage: req.StartStage,
	})

	o.runLoop(ctx, state, req.StartStage, req.StopAtStage)

	return state, nil
}

func (o *Orchestrator) validateStart(req *StartRequest) error {
	if err := o.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingInput, err)
	}

	text, ok := req.Input["input"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: input text", ErrMissingInput)
	}

	if req.StartStage == "" {
		req.StartStage = models.FirstStage()
	}

	if req.StartStage.Index() < 0 {
		return fmt.Errorf("%w: start stage %q", ErrInvalidStage, req.StartStage)
	}

	if req.StopAtStage != "" && req.StopAtStage.Index() < req.StartStage.Index() {
		return fmt.Errorf("%w: stop stage %q precedes start stage %q",
			ErrInvalidStage, req.StopAtStage, req.StartStage)
	}

	// A missing handler for any reachable stage is a configuration error
	// surfaced here, never mid-run. Stages beyond the stop gate are still
	// reachable through Resume, so coverage runs to the end of the pipeline.
	for stage, ok := req.StartStage, true; ok; stage, ok = stage.Next() {
		if o.handlers[stage] == nil {
			return fmt.Errorf("%w: %s", ErrHandlerNotRegistered, stage)
		}
	}

	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}

	return nil
}

// ResumeRequest continues a paused run.
type ResumeRequest struct {
	WorkflowID string `validate:"required"`

	// UserFeedback, when present, is attached to the current stage's
	// result. This is the only place feedback enters the model.
	UserFeedback string

	// AutoAdvance, when set, overrides the run's auto-advance flag.
	AutoAdvance *bool
}

// Resume continues a run from its persisted checkpoint. The workflow must
// be waiting for user input or in progress; any other status is an error
// and nothing is mutated.
func (o *Orchestrator) Resume(ctx context.Context, req ResumeRequest) (state *models.WorkflowState, err error) {
	defer o.recoverToEvent(ctx, req.WorkflowID, &err)

	state, err = o.store.Get(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if state.Status != models.WorkflowStatusWaitingForUser && state.Status != models.WorkflowStatusInProgress {
		return nil, fmt.Errorf("%w: cannot resume workflow %s in status %s",
			ErrInvalidWorkflowStatus, state.WorkflowID, state.Status)
	}

	if feedback := strings.TrimSpace(req.UserFeedback); feedback != "" {
		if result, ok := state.Result(state.CurrentStage); ok {
			result.UserFeedback = feedback
			o.persist(ctx, state)
		}
	}

	if req.AutoAdvance != nil {
		state.Config.AutoAdvance = *req.AutoAdvance
	}

	o.emit(ctx, events.WorkflowResumed{
		BaseEvent:        events.NewBaseEvent(events.WorkflowResumedEvent, state.WorkflowID),
		ResumedFromStage: state.CurrentStage,
		UserFeedback:     req.UserFeedback,
	})

	next, ok := state.CurrentStage.Next()
	if !ok {
		o.finalize(ctx, state)

		return state, nil
	}

	state.Status = models.WorkflowStatusInProgress
	o.persist(ctx, state)

	o.runLoop(ctx, state, next, "")

	return state, nil
}

// runLoop executes stages in canonical order starting at from, persisting
// after every transition, until the run pauses, fails, or completes.
func (o *Orchestrator) runLoop(ctx context.Context, state *models.WorkflowState, from, stopAt models.Stage) {
	logger := o.logger.With("workflow_id", state.WorkflowID)

	for stage := from; ; {
		state.CurrentStage = stage
		o.persist(ctx, state)

		o.emit(ctx, events.NewNodeEvent(events.WaitingEvent, state.WorkflowID, stage, events.NodeStatusWaiting, ""))
		o.emit(ctx, events.NewNodeEvent(events.ProcessingEvent, state.WorkflowID, stage, events.NodeStatusProcessing, ""))

		logger.InfoContext(ctx, "Executing stage", "stage", stage)

		result := models.NewStageResult(stage)
		output, err := o.executeStage(ctx, state, stage)

		if err != nil {
			o.failStage(ctx, state, result, err)

			return
		}

		result.Complete(output)
		state.SetResult(result)
		o.persist(ctx, state)

		summary := summarize(stage, output)
		o.emit(ctx, events.NewNodeEvent(events.SuccessEvent, state.WorkflowID, stage, events.NodeStatusSuccess, summary))
		o.emit(ctx, events.StageCompleted{
			BaseEvent:  events.NewBaseEvent(events.StageCompletedEvent, state.WorkflowID),
			Stage:      stage,
			Output:     output,
			Summary:    summary,
			DurationMs: time.Since(result.StartedAt).Milliseconds(),
		})

		if reason, paused := o.pauseReason(state, stage, stopAt); paused {
			o.pause(ctx, state, stage, reason)

			return
		}

		next, ok := stage.Next()
		if !ok {
			o.finalize(ctx, state)

			return
		}

		stage = next
	}
}

// pauseReason applies the pause decision after a completed stage: the
// mandatory approval gate, an explicit stop stage, or auto-advance off.
func (o *Orchestrator) pauseReason(state *models.WorkflowState, stage, stopAt models.Stage) (string, bool) {
	switch {
	case o.approvalGates[stage]:
		return "approval_gate", true
	case stage == stopAt && stopAt != "":
		return "stop_at_stage", true
	case !state.Config.AutoAdvance:
		return "auto_advance_disabled", true
	}

	return "", false
}

func (o *Orchestrator) pause(ctx context.Context, state *models.WorkflowState, stage models.Stage, reason string) {
	state.Status = models.WorkflowStatusWaitingForUser
	o.persist(ctx, state)

	if reason == "approval_gate" {
		o.emit(ctx, events.NewNodeEvent(events.NeedApprovalEvent, state.WorkflowID, stage, events.NodeStatusSuccess, ""))
	}

	o.emit(ctx, events.NewNodeEvent(events.PausedEvent, state.WorkflowID, stage, events.NodeStatusSuccess, ""))
	o.emit(ctx, events.WorkflowPaused{
		BaseEvent:     events.NewBaseEvent(events.WorkflowPausedEvent, state.WorkflowID),
		PausedAtStage: stage,
		Reason:        reason,
	})

	o.logger.InfoContext(ctx, "Workflow paused", "workflow_id", state.WorkflowID, "stage", stage, "reason", reason)
}

// failStage marks the stage and the whole run as failed. The orchestrator
// never retries; retry policy, if any, belongs to the handler.
func (o *Orchestrator) failStage(ctx context.Context, state *models.WorkflowState, result *models.StageResult, err error) {
	result.Fail(err)
	state.SetResult(result)

	now := time.Now().UTC()
	state.Status = models.WorkflowStatusFailed
	state.CompletedAt = &now
	o.persist(ctx, state)

	failed := events.NewNodeEvent(events.FailedEvent, state.WorkflowID, result.Stage, events.NodeStatusFailed, "")
	failed.Error = err.Error()
	o.emit(ctx, failed)
	o.emit(ctx, events.StageFailed{
		BaseEvent:  events.NewBaseEvent(events.StageFailedEvent, state.WorkflowID),
		Stage:      result.Stage,
		Error:      err.Error(),
		Timeout:    IsStageTimeout(err),
		DurationMs: time.Since(result.StartedAt).Milliseconds(),
	})

	o.logger.ErrorContext(ctx, "Stage failed", "workflow_id", state.WorkflowID, "stage", result.Stage, "error", err)
}

func (o *Orchestrator) finalize(ctx context.Context, state *models.WorkflowState) {
	now := time.Now().UTC()
	state.Status = models.WorkflowStatusCompleted
	state.CurrentStage = models.StageCompleted
	state.CompletedAt = &now
	o.persist(ctx, state)

	o.emit(ctx, events.WorkflowCompleted{
		BaseEvent:      events.NewBaseEvent(events.WorkflowCompletedEvent, state.WorkflowID),
		StagesExecuted: len(state.StageResults),
		DurationMs:     now.Sub(state.CreatedAt).Milliseconds(),
	})

	o.logger.InfoContext(ctx, "Workflow completed", "workflow_id", state.WorkflowID)
}

type stageOutput struct {
	output map[string]any
	err    error
}

// executeStage runs the bound handler under the stage deadline. Handlers
// that ignore the context are abandoned when the deadline passes; the run
// does not wait for them.
func (o *Orchestrator) executeStage(ctx context.Context, state *models.WorkflowState, stage models.Stage) (map[string]any, error) {
	handler := o.handlers[stage]

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	input := StageInput{
		State:  state,
		Stage:  stage,
		Prompt: derivedPrompt(state),
	}

	done := make(chan stageOutput, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutput{err: fmt.Errorf("panic in stage handler: %v", r)}
			}
		}()

		output, err := handler.Execute(stageCtx, input)
		done <- stageOutput{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: stage %s exceeded %s", ErrStageTimeout, stage, o.stageTimeout)
		}

		return res.output, res.err
	case <-stageCtx.Done():
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: stage %s exceeded %s", ErrStageTimeout, stage, o.stageTimeout)
		}

		return nil, stageCtx.Err()
	}
}

// derivedPrompt builds the input a handler sees: the source text plus the
// full feedback history of every completed stage, oldest first. Downstream
// stages always see the whole ledger, not just the most recent note.
func derivedPrompt(state *models.WorkflowState) string {
	prompt := state.SourceText()

	ledger := state.FeedbackLedger()
	if len(ledger) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n")
	sb.WriteString(feedbackHeader)

	for _, entry := range ledger {
		sb.WriteString("\n")
		sb.WriteString(entry)
	}

	return sb.String()
}

// Cancel stops a run that is in progress or waiting for user input. It only
// flips persisted state; an in-flight handler call is not interrupted.
// Cancelling an already-terminal workflow is a no-op returning false.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) (bool, error) {
	state, err := o.store.Get(ctx, workflowID)
	if err != nil {
		return false, err
	}

	if state.Status.IsTerminal() {
		return false, nil
	}

	if state.Status != models.WorkflowStatusInProgress &&
		state.Status != models.WorkflowStatusWaitingForUser &&
		state.Status != models.WorkflowStatusPaused {
		return false, fmt.Errorf("%w: cannot cancel workflow %s in status %s",
			ErrInvalidWorkflowStatus, workflowID, state.Status)
	}

	now := time.Now().UTC()
	state.Status = models.WorkflowStatusCancelled
	state.CompletedAt = &now
	state.Touch()

	// Cancellation must stick, so a save failure is reported to the caller
	// instead of being absorbed.
	if err := o.store.Save(ctx, state); err != nil {
		return false, err
	}

	o.emit(ctx, events.WorkflowCancelled{
		BaseEvent:        events.NewBaseEvent(events.WorkflowCancelledEvent, workflowID),
		CancelledAtStage: state.CurrentStage,
	})

	o.logger.InfoContext(ctx, "Workflow cancelled", "workflow_id", workflowID)

	return true, nil
}

// GetProgress derives the read-only progress view. It never mutates state.
func (o *Orchestrator) GetProgress(ctx context.Context, workflowID string) (models.Progress, error) {
	state, err := o.store.Get(ctx, workflowID)
	if err != nil {
		return models.Progress{}, err
	}

	return models.NewProgress(state), nil
}

// DeleteWorkflow removes persisted state unconditionally. Intended for
// cleanup and testing.
func (o *Orchestrator) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return o.store.Delete(ctx, workflowID)
}

// ListActiveWorkflows returns the IDs of non-terminal runs, optionally
// filtered by user.
func (o *Orchestrator) ListActiveWorkflows(ctx context.Context, userID string) ([]string, error) {
	return o.store.ListActive(ctx, userID)
}

// persist saves the state, absorbing storage failures: persistence
// unavailability must not abort a user-visible generation. A crash before
// the next successful save loses the unpersisted transition; that window is
// an accepted tradeoff.
func (o *Orchestrator) persist(ctx context.Context, state *models.WorkflowState) {
	state.Touch()

	if err := o.store.Save(ctx, state); err != nil {
		o.logger.WarnContext(ctx, "Failed to persist workflow state, continuing in memory",
			"workflow_id", state.WorkflowID, "error", err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, event events.Event) {
	if err := o.sink.Publish(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "workflow_id", event.GetWorkflowID(), "error", err)
	}
}

// recoverToEvent converts an internal panic into a workflow_error event so
// a consumer always receives a terminating signal instead of a hung stream.
func (o *Orchestrator) recoverToEvent(ctx context.Context, workflowID string, err *error) {
	r := recover()
	if r == nil {
		return
	}

	o.logger.ErrorContext(ctx, "Recovered from panic in workflow run", "workflow_id", workflowID, "panic", r)

	o.emit(ctx, events.WorkflowError{
		BaseEvent: events.NewBaseEvent(events.WorkflowErrorEvent, workflowID),
		Error:     fmt.Sprintf("internal error: %v", r),
	})

	*err = fmt.Errorf("workflow run panicked: %v", r)
}
