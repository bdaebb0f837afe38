// Command migrate applies the embedded database migrations and exits.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/flagkeeper/internal/config"
	"github.com/dmitrijs2005/flagkeeper/internal/logging"
	"github.com/dmitrijs2005/flagkeeper/internal/repositories/repomanager"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "db open error", "error", err)
		return 1
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Error(ctx, "db ping error", "error", err)
		return 1
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		logger.Error(ctx, "repository manager init error", "error", err)
		return 1
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		logger.Error(ctx, "migrations failed", "error", err)
		return 1
	}

	logger.Info(ctx, "migrations applied")
	return 0
}
