// Package store persists moderation state (blacklist and strikes) in
// PostgreSQL through database/sql with the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

const bootstrapTimeout = 30 * time.Second

// Store wraps the shared connection pool and exposes the per-concern
// repositories.
type Store struct {
	db *sql.DB

	Blacklist *BlacklistRepo
	Strikes   *StrikeRepo
}

// Open connects to MODERATION_DB_URI, applies the schema and returns the
// ready store.
func Open(ctx context.Context) (*Store, error) {
	dsn, err := env.GetEnvString("MODERATION_DB_URI")
	if err != nil {
		return nil, fmt.Errorf("parsing MODERATION_DB_URI: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening moderation database: %w", err)
	}
	db.SetMaxOpenConns(env.GetEnvIntOrDefault("MODERATION_DB_MAX_OPEN_CONNS", 10))
	db.SetMaxIdleConns(env.GetEnvIntOrDefault("MODERATION_DB_MAX_IDLE_CONNS", 5))
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging moderation database: %w", err)
	}
	if err := bootstrap(pingCtx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping moderation schema: %w", err)
	}

	log.Print(nil).Info("Moderation database ready")

	return &Store{
		db:        db,
		Blacklist: &BlacklistRepo{db: db},
		Strikes:   &StrikeRepo{db: db},
	}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS blacklist (
			user_id TEXT PRIMARY KEY,
			added_by TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS strikes (
			user_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			count INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, group_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blacklist_created_at ON blacklist (created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
