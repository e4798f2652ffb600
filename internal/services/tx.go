package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/metrics"
)

// Postgres error codes that mean "run the whole unit again".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// txRunner executes a unit of work in one transaction, retrying it a bounded
// number of times when the store reports a lock conflict.
type txRunner struct {
	db         *gorm.DB
	maxRetries int
	timeout    time.Duration
	logger     *slog.Logger
}

func (r *txRunner) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Once started, a unit is not aborted by the caller going away; it commits
	// or rolls back on its own, bounded by the runner timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		start := time.Now()
		err := r.db.WithContext(ctx).Transaction(fn)
		metrics.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}

		lastErr = err
		metrics.TxRetries.WithLabelValues(op).Inc()
		r.logger.Info("retrying transaction", "op", op, "attempt", attempt, "error", err)

		if attempt < r.maxRetries {
			if waitErr := sleepCtx(ctx, backoff(attempt)); waitErr != nil {
				break
			}
		}
	}

	metrics.TxConflicts.WithLabelValues(op).Inc()
	r.logger.Warn("transaction retries exhausted", "op", op, "attempts", r.maxRetries, "error", lastErr)
	return fmt.Errorf("%s: %w (last error: %v)", op, ErrConcurrencyConflict, lastErr)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}
	// SQLITE_BUSY surfaces as a plain error string from the driver.
	return strings.Contains(err.Error(), "database is locked")
}

func backoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 10 * time.Millisecond
	return base + time.Duration(rand.Int64N(int64(base)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// forUpdate locks the selected rows until the transaction ends. SQLite ignores
// the clause and serializes writers instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
