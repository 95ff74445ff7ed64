// Package file provides file-based workflow state storage for tests and
// local development.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/persistence"
)

// Store implements persistence.StateStore on the local file system, one
// JSON file per workflow.
type Store struct {
	root string
}

// NewStore creates a file store rooted at the given directory.
func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Store{root: cleanRoot}
}

func (s *Store) statePath(workflowID string) string {
	return filepath.Join(s.root, "states", workflowID+".json")
}

// Save writes the full state record, creating the directory on first use.
func (s *Store) Save(_ context.Context, state *models.WorkflowState) error {
	if err := os.MkdirAll(filepath.Join(s.root, "states"), 0o755); err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, err)
	}

	if err := os.WriteFile(s.statePath(state.WorkflowID), data, 0o644); err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, err)
	}

	return nil
}

// Get loads a state record by workflow ID.
func (s *Store) Get(_ context.Context, workflowID string) (*models.WorkflowState, error) {
	data, err := os.ReadFile(s.statePath(workflowID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStateError("Get", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStateError("Get", workflowID, err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, persistence.NewStateError("Get", workflowID,
			fmt.Errorf("%w: %w", persistence.ErrInvalidState, err))
	}

	return &state, nil
}

// Delete removes the state record. Deleting a missing record is not an error.
func (s *Store) Delete(_ context.Context, workflowID string) error {
	err := os.Remove(s.statePath(workflowID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewStateError("Delete", workflowID, err)
	}

	return nil
}

// ListActive returns the IDs of non-terminal workflows, optionally filtered
// by user.
func (s *Store) ListActive(ctx context.Context, userID string) ([]string, error) {
	root := os.DirFS(filepath.Join(s.root, "states"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewStateError("ListActive", "", err)
	}

	active := make([]string, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := strings.TrimSuffix(file, ".json")

		state, err := s.Get(ctx, workflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		if state.Status.IsTerminal() {
			continue
		}

		if userID != "" && state.UserID != userID {
			continue
		}

		active = append(active, workflowID)
	}

	return active, nil
}

// ListAll returns every stored workflow ID.
func (s *Store) ListAll(_ context.Context) ([]string, error) {
	root := os.DirFS(filepath.Join(s.root, "states"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewStateError("ListAll", "", err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file storage there is nothing
// to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}
