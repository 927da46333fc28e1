package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const defaultMaxConns = 10

// DB is the recommendation store handle. Every query and transaction holds
// one slot of sem, so a large seeding run cannot starve API reads of
// connections.
type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

var (
	shared     *DB
	sharedErr  error
	sharedOnce sync.Once
)

// DSN builds a lib/pq connection string from cfg.
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// NewDB connects the process-wide pool on first use; later calls return the
// same handle, or the same connection error.
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	sharedOnce.Do(func() {
		conn, err := sqlx.Connect("postgres", DSN(cfg))
		if err != nil {
			sharedErr = err
			return
		}

		maxConns := cfg.MaxConns
		if maxConns <= 0 {
			maxConns = defaultMaxConns
		}
		conn.SetMaxOpenConns(int(maxConns) * 2)
		conn.SetMaxIdleConns(int(maxConns) / 2)
		conn.SetConnMaxLifetime(5 * time.Minute)

		shared = Wrap(conn, maxConns)
	})
	return shared, sharedErr
}

// Wrap adapts an existing handle, as opened by the pgx driver or by tests.
func Wrap(conn *sqlx.DB, maxConcurrent int64) *DB {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &DB{DB: conn, sem: semaphore.NewWeighted(maxConcurrent)}
}

// acquire takes a slot for a read; the returned func gives it back.
func (db *DB) acquire(ctx context.Context) (func(), error) {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a database slot: %w", err)
	}
	return func() { db.sem.Release(1) }, nil
}

// WithTx runs fn in a transaction, rolling back when fn fails.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	release, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx.Tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}
