// Package orchestrator drives the ordered stage sequence of a story
// generation run, with checkpointed persistence and pause/resume.
package orchestrator

import "errors"

var (
	// ErrMissingInput indicates a required input field is absent. The run
	// is never persisted on precondition failures.
	ErrMissingInput = errors.New("required input is missing")

	// ErrInvalidStage indicates a start or stop stage outside the
	// canonical order.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrHandlerNotRegistered indicates a reachable stage has no bound
	// handler. Surfaced at StartWorkflow time, not at execution time.
	ErrHandlerNotRegistered = errors.New("no handler registered for stage")

	// ErrInvalidWorkflowStatus indicates an operation on a workflow whose
	// status does not permit it.
	ErrInvalidWorkflowStatus = errors.New("operation not allowed in current workflow status")

	// ErrStageTimeout indicates a stage handler exceeded its deadline.
	ErrStageTimeout = errors.New("stage execution timed out")
)

// IsPreconditionError checks if an error is a request-level failure that
// never created or mutated any workflow state.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrInvalidStage) ||
		errors.Is(err, ErrHandlerNotRegistered)
}

// IsInvalidStatus checks if an error indicates an operation attempted in
// the wrong workflow status.
func IsInvalidStatus(err error) bool {
	return errors.Is(err, ErrInvalidWorkflowStatus)
}

// IsStageTimeout checks if an error carries the timeout reason.
func IsStageTimeout(err error) bool {
	return errors.Is(err, ErrStageTimeout)
}
