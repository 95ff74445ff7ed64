// Package persistence provides the storage abstraction for workflow state.
package persistence

import (
	"context"

	"github.com/fableworks/fableflow/pkg/models"
)

// StateStore persists one record per workflow run. Save is last-writer-wins:
// each workflow has exactly one active orchestrator loop at a time by
// convention, so no multi-writer coordination is required.
type StateStore interface {
	Save(ctx context.Context, state *models.WorkflowState) error
	Get(ctx context.Context, workflowID string) (*models.WorkflowState, error)
	Delete(ctx context.Context, workflowID string) error

	// ListActive returns the IDs of non-terminal workflows, optionally
	// filtered by user.
	ListActive(ctx context.Context, userID string) ([]string, error)

	// ListAll returns every known workflow ID, terminal or not. Used by the
	// retention sweeper.
	ListAll(ctx context.Context) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
