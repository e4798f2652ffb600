package database

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/logging"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
	GetDB() *gorm.DB
}

type service struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL and configures the connection pool.
func Open(cfg config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logging.NewGormLogger(logger, cfg.SlowQueryThreshold),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("database connected", "host", cfg.DBHost, "name", cfg.DBName)
	return db, nil
}

const (
	acceptedAnswerIndex = "idx_answers_one_accepted"
	healthTimeout       = 5 * time.Second
)

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Question{}, "Tags", &models.QuestionTag{}); err != nil {
		return fmt.Errorf("setup question_tags: %w", err)
	}
	err := db.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Question{},
		&models.Answer{},
		&models.QuestionTag{},
		&models.Vote{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// At most one accepted answer per question.
	err = db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + acceptedAnswerIndex + " ON answers (question_id) WHERE is_accepted").Error
	if err != nil {
		return fmt.Errorf("create acceptance index: %w", err)
	}
	return nil
}

func New(db *gorm.DB, logger *slog.Logger) Service {
	return &service{db: db, logger: logger}
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

// Health pings the database and checks that the vote ledger and the
// accepted-answer guard are in place. Status is "up", "unmigrated" or "down".
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.logger.Warn("database health check failed", "error", err)
		return map[string]string{"status": "down", "error": err.Error()}
	}

	health := map[string]string{"status": "up"}
	m := s.db.WithContext(ctx).Migrator()
	if !m.HasTable(&models.Vote{}) || !m.HasIndex(&models.Answer{}, acceptedAnswerIndex) {
		health["status"] = "unmigrated"
	}

	st := sqlDB.Stats()
	health["open_connections"] = strconv.Itoa(st.OpenConnections)
	health["in_use"] = strconv.Itoa(st.InUse)
	health["wait_count"] = strconv.FormatInt(st.WaitCount, 10)
	return health
}

// Close closes the database connection.
func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.logger.Info("database disconnected")
	return sqlDB.Close()
}
