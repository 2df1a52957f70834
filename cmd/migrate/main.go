package main

import (
	"log"

	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/repository/store"
)

// Standalone schema migration for deployments that run the server with
// SERVORA_POSTGRES_AUTOMIGRATE=false.
func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	lg.Infow("connecting to database", "host", cfg.Postgres.Host, "db", cfg.Postgres.DBName)
	db, err := postgres.NewDB(cfg, lg)
	if err != nil {
		lg.Fatalw("failed to connect to postgres", "error", err)
	}

	if err := store.AutoMigrate(db); err != nil {
		lg.Fatalw("migration failed", "error", err)
	}
	lg.Infow("migration completed")
}
