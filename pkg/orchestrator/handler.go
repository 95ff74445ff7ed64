package orchestrator

import (
	"context"

	"github.com/fableworks/fableflow/pkg/models"
)

// StageInput is everything a stage handler may read. Handlers must not
// mutate the state; all mutation happens in the orchestrator after the
// handler returns.
type StageInput struct {
	State *models.WorkflowState
	Stage models.Stage

	// Prompt is the stage's derived input: the source text followed by the
	// accumulated feedback ledger of every completed stage, oldest first.
	Prompt string
}

// StageHandler executes the business logic of one pipeline stage. Handlers
// may perform long-running I/O (LLM calls); the context carries the stage
// deadline and cancellation, and handlers are expected to check it.
type StageHandler interface {
	Execute(ctx context.Context, input StageInput) (map[string]any, error)
}

// HandlerFunc adapts a plain function to the StageHandler interface.
type HandlerFunc func(ctx context.Context, input StageInput) (map[string]any, error)

func (f HandlerFunc) Execute(ctx context.Context, input StageInput) (map[string]any, error) {
	return f(ctx, input)
}
