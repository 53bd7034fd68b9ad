package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	maxTxAttempts  = 3
	txBackoffDelay = 50 * time.Millisecond
)

type txKey struct{}

// Queryer is the subset shared by *sql.DB and *sql.Tx
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// From returns the transaction carried by ctx, or the pool when there is none
func (db *DB) From(ctx context.Context) Queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}

// InTx reports whether ctx already carries a transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// WithTx runs fn inside a transaction. Nested calls join the outer transaction.
// Serialization failures and deadlocks are retried with a linear backoff.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		lastErr = db.runTx(ctx, fn)
		if lastErr == nil || !isRetryableError(lastErr) {
			return lastErr
		}

		if attempt < maxTxAttempts {
			slog.Warn("Transaction failed, retrying",
				"attempt", attempt, "max_retries", maxTxAttempts, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * txBackoffDelay):
			}
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, lastErr)
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
