package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is the shared analyses database handle
var DB *sql.DB

const (
	connectAttempts = 5
	connectDelay    = time.Second
	healthTimeout   = 2 * time.Second
)

// Initialize opens the analyses database and waits for it to accept
// connections. Postgres often starts after the API in compose setups, so
// the ping is retried with backoff.
func Initialize(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	// Analysis documents are few and large
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	delay := connectDelay
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			db.Close()
			return fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("database not ready")
		select {
		case <-ctx.Done():
			db.Close()
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	DB = db
	log.Info().Msg("database connection established")
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

// IsHealthy pings the database with a short timeout
func IsHealthy() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return DB.PingContext(ctx)
}
