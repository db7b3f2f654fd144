package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/repositories"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// SetupConfig writes the configuration template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.google.client_id and client_secret from your Google Cloud OAuth client\n")
	r.writePlain("2. Run 'gpb auth login'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	return r.withLedger(func(ledger *repositories.Ledger) error {
		version, _, err := shared.SchemaVersion(ledger.DB())
		if err != nil {
			return err
		}

		r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
		return r.writePlain("✓ Ledger ready at %s (schema version %d)\n", r.config.Database.Path, version)
	})
}

// SetupRollback reverts the most recent migration without re-applying it.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	before, ok, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no migrations have been applied", shared.ErrInvalidArgument)
	}

	r.logger.Info("rolling back migration", "version", before)
	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	after, ok, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}
	if !ok {
		return r.writePlain("✓ Rolled back migration %d, schema is empty\n", before)
	}
	return r.writePlain("✓ Schema version %d → %d\n", before, after)
}
