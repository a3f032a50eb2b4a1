package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// OpenOptions controls the startup ping. Zero values pick the defaults.
type OpenOptions struct {
	PingRetries  int
	RetryBackoff time.Duration
}

// Open returns a pgx-backed pool once the server answers a ping. The ping is
// retried with backoff so the API can start alongside its database.
func Open(ctx context.Context, databaseURL string, opts OpenOptions) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if opts.PingRetries <= 0 {
		opts.PingRetries = 5
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(opts.RetryBackoff, 8*opts.RetryBackoff).
		WithMaxRetries(opts.PingRetries).
		WithJitterFactor(0.1).
		Build()

	err = failsafe.With[any](retry).WithContext(ctx).Run(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
