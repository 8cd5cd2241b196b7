package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autocrm/journey/pkg/persistence"
	"github.com/autocrm/journey/pkg/persistence/file"
	"github.com/autocrm/journey/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence implementation from the database URL
// scheme: postgres:// and postgresql:// select PostgreSQL, anything else
// falls back to file storage.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgresql persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
