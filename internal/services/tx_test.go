package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/database/dbtest"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

func newRunner(t *testing.T, retries int) (*txRunner, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	return &txRunner{
		db:         db,
		maxRetries: retries,
		timeout:    5 * time.Second,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, db
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "55P03"}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isRetryable(errors.New("database is locked")))
	assert.False(t, isRetryable(ErrNotFound))
}

func TestTxRunner_RetriesThenGivesUp(t *testing.T) {
	r, _ := newRunner(t, 3)
	attempts := 0
	err := r.run(context.Background(), "test", func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 3, attempts)
}

func TestTxRunner_RecoversAfterConflict(t *testing.T) {
	r, db := newRunner(t, 3)
	attempts := 0
	err := r.run(context.Background(), "test", func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&models.User{Username: "u", Email: "u@example.com", Password: "x"}).Error; err != nil {
			return err
		}
		if attempts == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	// The first attempt rolled back, so only one row exists.
	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestTxRunner_NonRetryableRollsBack(t *testing.T) {
	r, db := newRunner(t, 3)
	attempts := 0
	err := r.run(context.Background(), "test", func(tx *gorm.DB) error {
		attempts++
		require.NoError(t, tx.Create(&models.User{Username: "u", Email: "u@example.com", Password: "x"}).Error)
		return ErrUnauthorized
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, attempts)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestTxRunner_CanceledBeforeStart(t *testing.T) {
	r, _ := newRunner(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := r.run(ctx, "test", func(tx *gorm.DB) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestTxRunner_CallerCancelDoesNotAbortStartedUnit(t *testing.T) {
	r, db := newRunner(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	err := r.run(ctx, "test", func(tx *gorm.DB) error {
		if err := tx.Create(&models.User{Username: "a", Email: "a@example.com", Password: "x"}).Error; err != nil {
			return err
		}
		cancel()
		return tx.Create(&models.User{Username: "b", Email: "b@example.com", Password: "x"}).Error
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}
