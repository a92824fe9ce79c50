package main

import (
	"context"
	"fmt"
	"log/slog"

	"docverify/internal/config"
	"docverify/internal/database"
	"docverify/internal/database/migration"
	"docverify/internal/repository"
	"docverify/internal/repository/memory"
	"docverify/internal/repository/postgres"
	"docverify/internal/repository/sqlite"
)

// openStore builds the verification store selected by STORE_DRIVER, migrating SQL schemas as needed.
func openStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (repository.DocumentRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Info("store_ready", "driver", config.DriverMemory)
		return memory.NewDocumentMemory(), func() {}, nil

	case config.DriverSQLite:
		db, err := database.NewSQLite(cfg.Store.SQLite)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, migration.SQLite, logger, cfg.Store.SQLite.Path); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("store_ready", "driver", config.DriverSQLite, "path", cfg.Store.SQLite.Path)
		return sqlite.NewDocumentSQLite(db), func() { _ = db.Close() }, nil

	case config.DriverPostgres:
		// PostgreSQL connection with pooling via database/sql
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, migration.Postgres, logger, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("store_ready", "driver", config.DriverPostgres, "db_host", cfg.Database.Host)
		return postgres.NewDocumentPostgres(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
