package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auditkit/website-audit/internal/config"
	"github.com/auditkit/website-audit/internal/store"
	"github.com/auditkit/website-audit/pkg/log"
	"github.com/auditkit/website-audit/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Named("audit_api").Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		// goose migrations when a folder is configured, otherwise the
		// schema is auto-migrated from the models
		if cfg.Database.MigrationFolder != "" {
			if err := migrations.MigrateStore(db, cfg.Database.MigrationFolder); err != nil {
				zap.S().Named("audit_api").Fatalf("running migrations: %v", err)
			}
			zap.S().Named("audit_api").Info("db migrated")
			return nil
		}

		if err := s.InitialMigration(); err != nil {
			zap.S().Named("audit_api").Fatalf("running initial migration: %v", err)
		}
		zap.S().Named("audit_api").Info("db migrated")
		return nil
	},
}
