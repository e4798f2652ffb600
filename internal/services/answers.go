package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/metrics"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

const minContentLength = 10

type AnswerService struct {
	db     *gorm.DB
	tx     *txRunner
	logger *slog.Logger
}

// AcceptanceState is a question's acceptance state after a transition:
// unsolved (AcceptedAnswerID empty) or solved by exactly one answer.
type AcceptanceState struct {
	QuestionID       string `json:"question_id"`
	AcceptedAnswerID string `json:"accepted_answer_id,omitempty"`
	Solved           bool   `json:"is_solved"`
}

// lockAnswerAndQuestion locks the question before the answer so every
// acceptance change on a question serializes on the question row.
func lockAnswerAndQuestion(tx *gorm.DB, answerID string) (models.Answer, models.Question, error) {
	var probe models.Answer
	if err := tx.Select("id", "question_id").Take(&probe, "id = ?", answerID).Error; err != nil {
		return models.Answer{}, models.Question{}, notFound(err, "answer")
	}

	var question models.Question
	if err := forUpdate(tx).Take(&question, "id = ?", probe.QuestionID).Error; err != nil {
		return models.Answer{}, models.Question{}, notFound(err, "question")
	}

	var answer models.Answer
	if err := forUpdate(tx).Take(&answer, "id = ?", answerID).Error; err != nil {
		return models.Answer{}, models.Question{}, notFound(err, "answer")
	}
	return answer, question, nil
}

// Accept marks answerID as the accepted answer of its question, un-accepting
// any other answer first, and marks the question solved. Only the question's
// owner may do this.
func (s *AnswerService) Accept(ctx context.Context, callerID, answerID string) (AcceptanceState, error) {
	var state AcceptanceState
	err := s.tx.run(ctx, "accept_answer", func(tx *gorm.DB) error {
		answer, question, err := lockAnswerAndQuestion(tx, answerID)
		if err != nil {
			return err
		}
		if question.UserID != callerID {
			return fmt.Errorf("only the question owner can accept answers: %w", ErrUnauthorized)
		}

		err = tx.Model(&models.Answer{}).
			Where("question_id = ? AND is_accepted = ? AND id <> ?", question.ID, true, answer.ID).
			Update("is_accepted", false).Error
		if err != nil {
			return err
		}
		if err := tx.Model(&answer).Update("is_accepted", true).Error; err != nil {
			return err
		}
		err = tx.Model(&question).UpdateColumns(map[string]any{
			"is_solved":          true,
			"accepted_answer_id": answer.ID,
		}).Error
		if err != nil {
			return err
		}

		state = AcceptanceState{QuestionID: question.ID, AcceptedAnswerID: answer.ID, Solved: true}
		return nil
	})
	if err != nil {
		metrics.AcceptanceTotal.WithLabelValues("accept", "rejected").Inc()
		s.logger.Warn("accept failed", "caller_id", callerID, "answer_id", answerID, "error", err)
		return AcceptanceState{}, err
	}

	metrics.AcceptanceTotal.WithLabelValues("accept", "ok").Inc()
	s.logger.Debug("answer accepted", "question_id", state.QuestionID, "answer_id", answerID)
	return state, nil
}

// Unaccept clears the accepted flag on answerID. The question becomes
// unsolved unless another answer under it is still accepted.
func (s *AnswerService) Unaccept(ctx context.Context, callerID, answerID string) (AcceptanceState, error) {
	var state AcceptanceState
	err := s.tx.run(ctx, "unaccept_answer", func(tx *gorm.DB) error {
		answer, question, err := lockAnswerAndQuestion(tx, answerID)
		if err != nil {
			return err
		}
		if question.UserID != callerID {
			return fmt.Errorf("only the question owner can unaccept answers: %w", ErrUnauthorized)
		}

		if err := tx.Model(&answer).Update("is_accepted", false).Error; err != nil {
			return err
		}
		state, err = syncSolved(tx, question.ID)
		return err
	})
	if err != nil {
		metrics.AcceptanceTotal.WithLabelValues("unaccept", "rejected").Inc()
		s.logger.Warn("unaccept failed", "caller_id", callerID, "answer_id", answerID, "error", err)
		return AcceptanceState{}, err
	}

	metrics.AcceptanceTotal.WithLabelValues("unaccept", "ok").Inc()
	return state, nil
}

// syncSolved recomputes a locked question's solved flag from its answers.
func syncSolved(tx *gorm.DB, questionID string) (AcceptanceState, error) {
	var accepted []models.Answer
	err := tx.Select("id").
		Where("question_id = ? AND is_accepted = ?", questionID, true).
		Order("updated_at desc").
		Find(&accepted).Error
	if err != nil {
		return AcceptanceState{}, err
	}

	state := AcceptanceState{QuestionID: questionID}
	updates := map[string]any{"is_solved": false, "accepted_answer_id": nil}
	if len(accepted) > 0 {
		state.AcceptedAnswerID = accepted[0].ID
		state.Solved = true
		updates = map[string]any{"is_solved": true, "accepted_answer_id": accepted[0].ID}
	}

	err = tx.Model(&models.Question{}).Where("id = ?", questionID).UpdateColumns(updates).Error
	return state, err
}

// CreateAnswer adds an answer to questionID and bumps its answer_count.
func (s *AnswerService) CreateAnswer(ctx context.Context, userID, questionID, content string) (*models.Answer, error) {
	content = strings.TrimSpace(content)
	if len(content) < minContentLength {
		return nil, fmt.Errorf("answer must be at least %d characters: %w", minContentLength, ErrInvalidRequest)
	}

	answer := models.Answer{QuestionID: questionID, UserID: userID, Content: content}
	err := s.tx.run(ctx, "create_answer", func(tx *gorm.DB) error {
		var question models.Question
		if err := forUpdate(tx).Select("id").Take(&question, "id = ?", questionID).Error; err != nil {
			return notFound(err, "question")
		}
		if err := tx.Omit("Author").Create(&answer).Error; err != nil {
			return err
		}
		return tx.Model(&question).UpdateColumn("answer_count", gorm.Expr("answer_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// UpdateAnswer replaces the content of an answer owned by userID. Votes and
// acceptance are untouched.
func (s *AnswerService) UpdateAnswer(ctx context.Context, userID, answerID, content string) (*models.Answer, error) {
	content = strings.TrimSpace(content)
	if len(content) < minContentLength {
		return nil, fmt.Errorf("answer must be at least %d characters: %w", minContentLength, ErrInvalidRequest)
	}

	var answer models.Answer
	err := s.tx.run(ctx, "update_answer", func(tx *gorm.DB) error {
		var err error
		answer, _, err = lockAnswerAndQuestion(tx, answerID)
		if err != nil {
			return err
		}
		if answer.UserID != userID {
			return fmt.Errorf("only the author can edit an answer: %w", ErrUnauthorized)
		}
		if err := tx.Model(&answer).Update("content", content).Error; err != nil {
			return err
		}
		answer.Content = content
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// DeleteAnswer removes an answer owned by userID together with the votes on
// it. If it was the accepted answer the question's solved state is
// recomputed in the same transaction.
func (s *AnswerService) DeleteAnswer(ctx context.Context, userID, answerID string) error {
	return s.tx.run(ctx, "delete_answer", func(tx *gorm.DB) error {
		answer, question, err := lockAnswerAndQuestion(tx, answerID)
		if err != nil {
			return err
		}
		if answer.UserID != userID {
			return fmt.Errorf("only the author can delete an answer: %w", ErrUnauthorized)
		}

		if err := revokeVotes(tx, models.TargetAnswer, map[string]string{answer.ID: answer.UserID}); err != nil {
			return err
		}
		if err := tx.Delete(&answer).Error; err != nil {
			return err
		}
		err = tx.Model(&question).UpdateColumn("answer_count",
			gorm.Expr("CASE WHEN answer_count > 0 THEN answer_count - 1 ELSE 0 END")).Error
		if err != nil {
			return err
		}
		if answer.IsAccepted {
			_, err = syncSolved(tx, question.ID)
		}
		return err
	})
}

// AnswersForQuestion lists a question's answers, accepted first, then by votes
// and recency.
func (s *AnswerService) AnswersForQuestion(ctx context.Context, questionID string) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.WithContext(ctx).Preload("Author").
		Where("question_id = ?", questionID).
		Order("is_accepted desc").Order("vote_count desc").Order("created_at desc").
		Find(&answers).Error
	return answers, err
}

func (s *AnswerService) AnswersByUser(ctx context.Context, userID string, page Page) ([]models.Answer, error) {
	page = page.normalize()
	var answers []models.Answer
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(page.offset()).Limit(page.Limit).
		Find(&answers).Error
	return answers, err
}

func (s *AnswerService) AcceptedAnswersByUser(ctx context.Context, userID string) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_accepted = ?", userID, true).
		Order("created_at desc").
		Find(&answers).Error
	return answers, err
}
