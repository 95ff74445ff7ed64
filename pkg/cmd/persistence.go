package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fableworks/fableflow/pkg/persistence"
	"github.com/fableworks/fableflow/pkg/persistence/file"
	"github.com/fableworks/fableflow/pkg/persistence/redis"
)

var supportedStateStoreProviders = []string{"file", "redis"}

// NewStateStore builds the workflow state store named by the database URL
// scheme. Anything other than redis:// falls back to file storage.
func NewStateStore(ctx context.Context, databaseURL string, logger *slog.Logger) (persistence.StateStore, error) {
	provider := parseStateStoreProvider(databaseURL)

	switch provider {
	case "redis":
		return redis.NewStore(ctx, databaseURL, logger)
	default:
		return file.NewStore(databaseURL), nil
	}
}

func parseStateStoreProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedStateStoreProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
