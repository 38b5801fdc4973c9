package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot, but only in dev with the
// auto-migrate flag set. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	before, err := CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	after, err := CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"from_version": before,
		"to_version":   after,
	})
	if before == after {
		logg.Info(ctx, "schema already current")
		return nil
	}
	logg.Info(ctx, "schema migrated")
	return nil
}
