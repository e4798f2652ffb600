package database_test

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/database/dbtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealth_Migrated(t *testing.T) {
	svc := database.New(dbtest.New(t), discardLogger())

	health := svc.Health()
	assert.Equal(t, "up", health["status"])
	assert.Contains(t, health, "open_connections")
}

func TestHealth_Unmigrated(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "empty.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	svc := database.New(db, discardLogger())
	t.Cleanup(func() { _ = svc.Close() })

	assert.Equal(t, "unmigrated", svc.Health()["status"])

	require.NoError(t, database.Migrate(db))
	assert.Equal(t, "up", svc.Health()["status"])
}

func TestHealth_Closed(t *testing.T) {
	svc := database.New(dbtest.New(t), discardLogger())
	require.NoError(t, svc.Close())

	health := svc.Health()
	assert.Equal(t, "down", health["status"])
	assert.NotEmpty(t, health["error"])
}
