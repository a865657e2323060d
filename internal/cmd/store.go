package cmd

import (
	"context"
	"fmt"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/store"
)

// openStore opens and migrates the local settings database.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return db, nil
}
