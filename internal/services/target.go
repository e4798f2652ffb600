package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

// Target names exactly one votable record.
type Target struct {
	Kind models.TargetKind
	ID   string
}

// TargetFromIDs builds a Target from the request's optional ids. Exactly one
// of questionID and answerID must be non-empty.
func TargetFromIDs(questionID, answerID string) (Target, error) {
	switch {
	case questionID == "" && answerID == "":
		return Target{}, fmt.Errorf("either question_id or answer_id is required: %w", ErrInvalidRequest)
	case questionID != "" && answerID != "":
		return Target{}, fmt.Errorf("cannot vote on both question and answer: %w", ErrInvalidRequest)
	case questionID != "":
		return Target{Kind: models.TargetQuestion, ID: questionID}, nil
	default:
		return Target{Kind: models.TargetAnswer, ID: answerID}, nil
	}
}

func (t Target) validate() error {
	if !t.Kind.Valid() || t.ID == "" {
		return fmt.Errorf("target %q/%q: %w", t.Kind, t.ID, ErrInvalidRequest)
	}
	return nil
}

func (t Target) model() any {
	if t.Kind == models.TargetQuestion {
		return &models.Question{}
	}
	return &models.Answer{}
}

// resolvedTarget is a target row read under lock inside the voting transaction.
type resolvedTarget struct {
	Target
	OwnerID   string
	VoteCount int
}

// resolveTarget locks the target row and returns its owner and current count.
func resolveTarget(tx *gorm.DB, t Target) (resolvedTarget, error) {
	var row struct {
		UserID    string
		VoteCount int
	}
	err := forUpdate(tx).Model(t.model()).
		Select("user_id", "vote_count").
		Where("id = ?", t.ID).
		Take(&row).Error
	if err != nil {
		return resolvedTarget{}, notFound(err, string(t.Kind))
	}
	return resolvedTarget{Target: t, OwnerID: row.UserID, VoteCount: row.VoteCount}, nil
}
