// Package cmd provides shared construction helpers for the greenlight
// binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/persistence/file"
	"github.com/greenlighthq/greenlight/pkg/persistence/postgresql"
)

// NewPersistence selects the storage adapter by URL scheme: postgres://
// (or postgresql://) for the SQL adapter, anything else is treated as a file
// system root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize postgres persistence", "error", err)
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
