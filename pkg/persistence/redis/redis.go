// Package redis provides Redis-backed workflow state storage.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/persistence"
)

const (
	stateKeyPrefix = "workflow:state:"
	activeSetKey   = "workflow:active"
	userSetPrefix  = "workflow:active:user:"

	// StateTTL is how long a state record survives after its last Save.
	StateTTL = 7 * 24 * time.Hour

	connectTimeout = 5 * time.Second
)

// Store implements persistence.StateStore on Redis. Each run is a single
// JSON value under workflow:state:{workflowId}, with membership sets per
// user for ListActive.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection with a ping.
// The URL takes the form redis://host:port/db.
func NewStore(ctx context.Context, rawURL string, logger *slog.Logger) (*Store, error) {
	addr, password, db, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return &Store{
		client: client,
		logger: logger.With("module", "redis_state_store"),
	}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client redis.UniversalClient, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With("module", "redis_state_store"),
	}
}

func parseURL(rawURL string) (addr, password string, db int, err error) {
	trimmed := strings.TrimPrefix(rawURL, "redis://")

	if at := strings.LastIndex(trimmed, "@"); at >= 0 {
		password = trimmed[:at]
		trimmed = trimmed[at+1:]
	}

	addr = trimmed
	if slash := strings.Index(trimmed, "/"); slash >= 0 {
		addr = trimmed[:slash]

		db, err = strconv.Atoi(trimmed[slash+1:])
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid redis db value: %w", err)
		}
	}

	if addr == "" {
		addr = "localhost:6379"
	}

	return addr, password, db, nil
}

func stateKey(workflowID string) string {
	return stateKeyPrefix + workflowID
}

func userSetKey(userID string) string {
	return userSetPrefix + userID
}

// Save writes the full state record and refreshes its TTL. The membership
// sets are updated in the same pipeline so ListActive stays consistent with
// the record.
func (s *Store) Save(ctx context.Context, state *models.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stateKey(state.WorkflowID), data, StateTTL)
	pipe.SAdd(ctx, activeSetKey, state.WorkflowID)
	pipe.Expire(ctx, activeSetKey, StateTTL)

	if state.UserID != "" {
		pipe.SAdd(ctx, userSetKey(state.UserID), state.WorkflowID)
		pipe.Expire(ctx, userSetKey(state.UserID), StateTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, err)
	}

	return nil
}

// Get loads a state record by workflow ID.
func (s *Store) Get(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	data, err := s.client.Get(ctx, stateKey(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

// Delete removes the state record and its set memberships.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	state, err := s.Get(ctx, workflowID)
	if err != nil && !persistence.IsWorkflowNotFound(err) {
		return persistence.NewStateError("Delete", workflowID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(workflowID))
	pipe.SRem(ctx, activeSetKey, workflowID)

	if state != nil && state.UserID != "" {
		pipe.SRem(ctx, userSetKey(state.UserID), workflowID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStateError("Delete", workflowID, err)
	}

	return nil
}

// ListActive returns the IDs of non-terminal workflows. Members whose state
// record has expired are pruned from the set as a side effect.
func (s *Store) ListActive(ctx context.Context, userID string) ([]string, error) {
	setKey := activeSetKey
	if userID != "" {
		setKey = userSetKey(userID)
	}

	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, persistence.NewStateError("ListActive", "", err)
	}

	active := make([]string, 0, len(members))

	for _, workflowID := range members {
		state, err := s.Get(ctx, workflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				// Record expired; drop the stale index entry.
				if remErr := s.client.SRem(ctx, setKey, workflowID).Err(); remErr != nil {
					s.logger.WarnContext(ctx, "Failed to prune stale index entry",
						"workflow_id", workflowID, "error", remErr)
				}

				continue
			}

			return nil, err
		}

		if state.Status.IsTerminal() {
			continue
		}

		active = append(active, workflowID)
	}

	return active, nil
}

// ListAll returns every indexed workflow ID, terminal or not.
func (s *Store) ListAll(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, persistence.NewStateError("ListAll", "", err)
	}

	return members, nil
}

// HealthCheck pings the Redis server.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
