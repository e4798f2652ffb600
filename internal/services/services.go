package services

import (
	"log/slog"
	"time"

	"gorm.io/gorm"
)

type Options struct {
	// MaxRetries bounds how many times a unit is attempted on lock conflicts.
	MaxRetries int
	// Timeout bounds a unit once started, independent of the caller.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Services combines all core services over one database handle.
type Services struct {
	Votes      *VoteService
	Answers    *AnswerService
	Questions  *QuestionService
	Tags       *TagService
	Stats      *StatsService
	Reconciler *Reconciler
}

func New(db *gorm.DB, opts Options) *Services {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	runner := &txRunner{
		db:         db,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}

	return &Services{
		Votes:      &VoteService{db: db, tx: runner, logger: opts.Logger.With("service", "votes")},
		Answers:    &AnswerService{db: db, tx: runner, logger: opts.Logger.With("service", "answers")},
		Questions:  &QuestionService{db: db, tx: runner, logger: opts.Logger.With("service", "questions")},
		Tags:       &TagService{db: db, tx: runner, logger: opts.Logger.With("service", "tags")},
		Stats:      &StatsService{db: db},
		Reconciler: &Reconciler{db: db, tx: runner, logger: opts.Logger.With("service", "reconcile")},
	}
}

// Page is offset pagination; zero values mean the first page of defaultLimit.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 10
	maxLimit     = 50
)

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Limit
}

func clampLimit(limit, def int) int {
	if limit < 1 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
