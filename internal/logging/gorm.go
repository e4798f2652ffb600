package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger adapts slog to GORM's logger.Interface. SQL is logged at DEBUG;
// slow queries and query errors are logged at WARN.
type GormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func NewGormLogger(logger *slog.Logger, slowThreshold time.Duration) *GormLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormLogger{
		logger:        logger.With("module", "database"),
		slowThreshold: slowThreshold,
	}
}

// LogMode is a no-op; the level is owned by the slog handler.
func (g *GormLogger) LogMode(_ gormlogger.LogLevel) gormlogger.Interface {
	return g
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	g.logger.DebugContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	g.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	g.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		g.logger.WarnContext(ctx, "query error",
			slog.String("sql", sql),
			slog.Int64("rows_affected", rows),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.Any("error", err))
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		sql, rows := fc()
		g.logger.WarnContext(ctx, "slow query",
			slog.String("sql", sql),
			slog.Int64("rows_affected", rows),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.Duration("threshold", g.slowThreshold))
	case g.logger.Enabled(ctx, slog.LevelDebug):
		// Rendering SQL interpolates every bound value; skip it unless it is kept.
		sql, rows := fc()
		g.logger.DebugContext(ctx, "sql query",
			slog.String("sql", sql),
			slog.Int64("rows_affected", rows),
			slog.Int64("duration_ms", elapsed.Milliseconds()))
	}
}
