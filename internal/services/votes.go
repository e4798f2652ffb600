package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/metrics"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

const (
	msgVoteRecorded = "Vote recorded"
	msgVoteUpdated  = "Vote updated"
	msgVoteRemoved  = "Vote removed"
	msgNoVote       = "No vote to remove"
)

type VoteService struct {
	db     *gorm.DB
	tx     *txRunner
	logger *slog.Logger
}

// VoteResult is the outcome of a vote operation. Value is the voter's vote on
// the target after the operation (0 when none), Delta the change applied to the
// target's vote count and VoteCount the count after the change.
type VoteResult struct {
	Value     int
	Delta     int
	VoteCount int
	Message   string
}

// VoteTotals are live counts from the vote ledger, independent of the cached
// vote_count on the target.
type VoteTotals struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Total     int `json:"total"`
}

// toggle applies the voting rule: repeating the current value removes the
// vote, anything else sets it. It returns the resulting value and the delta to
// apply to the target's vote count.
func toggle(oldValue, requested int) (resulting, delta int) {
	if oldValue == requested {
		return 0, -oldValue
	}
	return requested, requested - oldValue
}

// CastVote records voterID's vote of value (+1 or -1) on target. Casting the
// same value twice in a row removes the vote. The ledger row, the target's
// vote_count and the owner's reputation change in one transaction.
func (s *VoteService) CastVote(ctx context.Context, voterID string, target Target, value int) (VoteResult, error) {
	if err := target.validate(); err != nil {
		return VoteResult{}, s.reject(target, err)
	}
	if value != 1 && value != -1 {
		return VoteResult{}, s.reject(target, fmt.Errorf("vote value must be -1 or 1, got %d: %w", value, ErrInvalidRequest))
	}
	if voterID == "" {
		return VoteResult{}, s.reject(target, fmt.Errorf("missing voter: %w", ErrInvalidRequest))
	}

	var result VoteResult
	err := s.tx.run(ctx, "cast_vote", func(tx *gorm.DB) error {
		rt, err := resolveTarget(tx, target)
		if err != nil {
			return err
		}
		if rt.OwnerID == voterID {
			return ErrSelfVoteForbidden
		}

		existing, err := findVote(tx, voterID, target)
		if err != nil {
			return err
		}
		oldValue := 0
		if existing != nil {
			oldValue = existing.Value
		}

		result, err = applyVote(tx, rt, voterID, existing, oldValue, value)
		return err
	})
	if err != nil {
		return VoteResult{}, s.reject(target, err)
	}

	metrics.VotesTotal.WithLabelValues(string(target.Kind), outcomeLabel(result.Message)).Inc()
	s.logger.Debug("vote cast", "voter_id", voterID, "target_kind", target.Kind, "target_id", target.ID,
		"value", result.Value, "delta", result.Delta, "vote_count", result.VoteCount)
	return result, nil
}

// RemoveVote deletes voterID's vote on target, if any, through the same delta
// path as a toggle-off.
func (s *VoteService) RemoveVote(ctx context.Context, voterID string, target Target) (VoteResult, error) {
	if err := target.validate(); err != nil {
		return VoteResult{}, s.reject(target, err)
	}

	var result VoteResult
	err := s.tx.run(ctx, "remove_vote", func(tx *gorm.DB) error {
		rt, err := resolveTarget(tx, target)
		if err != nil {
			return err
		}
		existing, err := findVote(tx, voterID, target)
		if err != nil {
			return err
		}
		if existing == nil {
			result = VoteResult{VoteCount: rt.VoteCount, Message: msgNoVote}
			return nil
		}
		result, err = applyVote(tx, rt, voterID, existing, existing.Value, existing.Value)
		return err
	})
	if err != nil {
		return VoteResult{}, s.reject(target, err)
	}

	if result.Delta != 0 {
		metrics.VotesTotal.WithLabelValues(string(target.Kind), "removed").Inc()
	}
	return result, nil
}

// applyVote performs the ledger write, the counter delta and the reputation
// delta for one vote transition. Both deltas derive from the same
// (oldValue, requested) pair.
func applyVote(tx *gorm.DB, rt resolvedTarget, voterID string, existing *models.Vote, oldValue, requested int) (VoteResult, error) {
	resulting, delta := toggle(oldValue, requested)

	var msg string
	switch {
	case resulting == 0:
		if err := tx.Delete(existing).Error; err != nil {
			return VoteResult{}, err
		}
		msg = msgVoteRemoved
	case existing != nil:
		if err := tx.Model(existing).UpdateColumn("value", resulting).Error; err != nil {
			return VoteResult{}, err
		}
		msg = msgVoteUpdated
	default:
		vote := models.Vote{VoterID: voterID, TargetKind: rt.Kind, TargetID: rt.ID, Value: resulting}
		if err := tx.Create(&vote).Error; err != nil {
			return VoteResult{}, err
		}
		msg = msgVoteRecorded
	}

	if err := applyDelta(tx, rt.Target, delta); err != nil {
		return VoteResult{}, err
	}
	if err := applyReputation(tx, rt.OwnerID, reputationDelta(oldValue, resulting)); err != nil {
		return VoteResult{}, err
	}

	return VoteResult{
		Value:     resulting,
		Delta:     delta,
		VoteCount: rt.VoteCount + delta,
		Message:   msg,
	}, nil
}

// applyDelta is the only writer of vote_count.
func applyDelta(tx *gorm.DB, target Target, delta int) error {
	if delta == 0 {
		return nil
	}
	return tx.Model(target.model()).
		Where("id = ?", target.ID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", delta)).Error
}

func findVote(tx *gorm.DB, voterID string, target Target) (*models.Vote, error) {
	var vote models.Vote
	err := tx.Where("voter_id = ? AND target_kind = ? AND target_id = ?", voterID, target.Kind, target.ID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (s *VoteService) reject(target Target, err error) error {
	metrics.VotesTotal.WithLabelValues(string(target.Kind), "rejected").Inc()
	s.logger.Warn("vote rejected", "target_kind", target.Kind, "target_id", target.ID, "error", err)
	return err
}

func outcomeLabel(msg string) string {
	switch msg {
	case msgVoteRecorded:
		return "recorded"
	case msgVoteUpdated:
		return "updated"
	default:
		return "removed"
	}
}

// GetUserVote returns voterID's current vote on target, 0 when there is none.
func (s *VoteService) GetUserVote(ctx context.Context, voterID string, target Target) (int, error) {
	if err := target.validate(); err != nil {
		return 0, err
	}
	vote, err := findVote(s.db.WithContext(ctx), voterID, target)
	if err != nil || vote == nil {
		return 0, err
	}
	return vote.Value, nil
}

func (s *VoteService) VotesByUser(ctx context.Context, voterID string, page Page) ([]models.Vote, error) {
	page = page.normalize()
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Where("voter_id = ?", voterID).
		Order("created_at desc").
		Offset(page.offset()).Limit(page.Limit).
		Find(&votes).Error
	return votes, err
}

// Totals counts the live votes on target.
func (s *VoteService) Totals(ctx context.Context, target Target) (VoteTotals, error) {
	if err := target.validate(); err != nil {
		return VoteTotals{}, err
	}
	db := s.db.WithContext(ctx)

	var exists int64
	if err := db.Model(target.model()).Where("id = ?", target.ID).Count(&exists).Error; err != nil {
		return VoteTotals{}, err
	}
	if exists == 0 {
		return VoteTotals{}, fmt.Errorf("%s %s: %w", target.Kind, target.ID, ErrNotFound)
	}

	var totals VoteTotals
	err := db.Model(&models.Vote{}).
		Select("COALESCE(SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END), 0) AS upvotes, "+
			"COALESCE(SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END), 0) AS downvotes").
		Where("target_kind = ? AND target_id = ?", target.Kind, target.ID).
		Scan(&totals).Error
	if err != nil {
		return VoteTotals{}, err
	}
	totals.Total = totals.Upvotes - totals.Downvotes
	return totals, nil
}

func (s *VoteService) TopVotedQuestions(ctx context.Context, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.WithContext(ctx).Preload("Author").
		Order("vote_count desc").Order("created_at desc").
		Limit(clampLimit(limit, defaultLimit)).
		Find(&questions).Error
	return questions, err
}

func (s *VoteService) TopVotedAnswers(ctx context.Context, limit int) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.WithContext(ctx).Preload("Author").
		Order("vote_count desc").Order("created_at desc").
		Limit(clampLimit(limit, defaultLimit)).
		Find(&answers).Error
	return answers, err
}
