package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/persistence/file"
	"github.com/beaconops/flock/pkg/persistence/postgresql"
)

// NewPersistence selects the backend from the URL scheme: postgres URLs get
// the PostgreSQL store, anything else falls back to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
