package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

const maxTitleLength = 255

type QuestionService struct {
	db     *gorm.DB
	tx     *txRunner
	logger *slog.Logger
}

type QuestionInput struct {
	Title    string
	Content  string
	TagNames []string
}

// QuestionUpdate carries optional changes; nil fields are left untouched.
type QuestionUpdate struct {
	Title    *string
	Content  *string
	TagNames *[]string
}

type ListParams struct {
	Query string
	Tags  []string
	Sort  SortKey
	Order SortOrder
	Page  Page
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLength {
		return "", fmt.Errorf("title must be 1-%d characters: %w", maxTitleLength, ErrInvalidRequest)
	}
	return title, nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if len(content) < minContentLength {
		return "", fmt.Errorf("content must be at least %d characters: %w", minContentLength, ErrInvalidRequest)
	}
	return content, nil
}

func validateTagSet(names []string) ([]string, error) {
	tags, err := NormalizeTags(names)
	if err != nil {
		return nil, err
	}
	if len(tags) < 1 || len(tags) > maxTagsPerQuest {
		return nil, fmt.Errorf("a question needs 1-%d tags, got %d: %w", maxTagsPerQuest, len(tags), ErrInvalidRequest)
	}
	return tags, nil
}

// CreateQuestion stores a question and counts its tags in one transaction.
func (s *QuestionService) CreateQuestion(ctx context.Context, userID string, in QuestionInput) (*models.Question, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}
	tags, err := validateTagSet(in.TagNames)
	if err != nil {
		return nil, err
	}

	question := models.Question{UserID: userID, Title: title, Content: content}
	err = s.tx.run(ctx, "create_question", func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&question).Error; err != nil {
			return err
		}
		return attachTags(tx, question.ID, tags)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("question created", "question_id", question.ID, "tags", tags)
	return s.GetQuestion(ctx, question.ID)
}

// UpdateQuestion applies an owner's edit. A changed tag set is applied as a
// set difference: only removed tags are decremented and only added ones
// incremented.
func (s *QuestionService) UpdateQuestion(ctx context.Context, userID, questionID string, upd QuestionUpdate) (*models.Question, error) {
	fields := map[string]any{}
	if upd.Title != nil {
		title, err := validateTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		fields["title"] = title
	}
	if upd.Content != nil {
		content, err := validateContent(*upd.Content)
		if err != nil {
			return nil, err
		}
		fields["content"] = content
	}
	var nextTags []string
	if upd.TagNames != nil {
		var err error
		if nextTags, err = validateTagSet(*upd.TagNames); err != nil {
			return nil, err
		}
	}

	err := s.tx.run(ctx, "update_question", func(tx *gorm.DB) error {
		question, err := lockOwnedQuestion(tx, userID, questionID)
		if err != nil {
			return err
		}

		if len(fields) > 0 {
			if err := tx.Model(&question).Omit(clause.Associations).Updates(fields).Error; err != nil {
				return err
			}
		}

		if upd.TagNames == nil {
			return nil
		}
		prev, err := tagNamesOf(tx, question.ID)
		if err != nil {
			return err
		}
		added, removed := diffTags(prev, nextTags)
		if err := detachTags(tx, question.ID, removed); err != nil {
			return err
		}
		return attachTags(tx, question.ID, added)
	})
	if err != nil {
		return nil, err
	}
	return s.GetQuestion(ctx, questionID)
}

// DeleteQuestion removes an owner's question with its answers, the votes on
// both (reverting the reputation they granted) and its tag links.
func (s *QuestionService) DeleteQuestion(ctx context.Context, userID, questionID string) error {
	return s.tx.run(ctx, "delete_question", func(tx *gorm.DB) error {
		question, err := lockOwnedQuestion(tx, userID, questionID)
		if err != nil {
			return err
		}

		var answers []models.Answer
		if err := forUpdate(tx).Select("id", "user_id").Where("question_id = ?", question.ID).
			Order("id").Find(&answers).Error; err != nil {
			return err
		}
		answerOwners := make(map[string]string, len(answers))
		for _, a := range answers {
			answerOwners[a.ID] = a.UserID
		}

		if err := revokeVotes(tx, models.TargetQuestion, map[string]string{question.ID: question.UserID}); err != nil {
			return err
		}
		if err := revokeVotes(tx, models.TargetAnswer, answerOwners); err != nil {
			return err
		}

		tags, err := tagNamesOf(tx, question.ID)
		if err != nil {
			return err
		}
		if err := detachTags(tx, question.ID, tags); err != nil {
			return err
		}

		if err := tx.Where("question_id = ?", question.ID).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&question).Error
	})
}

func lockOwnedQuestion(tx *gorm.DB, userID, questionID string) (models.Question, error) {
	var question models.Question
	if err := forUpdate(tx).Take(&question, "id = ?", questionID).Error; err != nil {
		return models.Question{}, notFound(err, "question")
	}
	if question.UserID != userID {
		return models.Question{}, fmt.Errorf("question %s belongs to another user: %w", questionID, ErrUnauthorized)
	}
	return question, nil
}

// GetQuestion loads a question with its author, tags and ordered answers.
func (s *QuestionService) GetQuestion(ctx context.Context, questionID string) (*models.Question, error) {
	var question models.Question
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.name") }).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_accepted desc").Order("vote_count desc").Order("created_at desc")
		}).
		Preload("Answers.Author").
		Take(&question, "id = ?", questionID).Error
	if err != nil {
		return nil, notFound(err, "question")
	}
	return &question, nil
}

// IncrementViews bumps a question's view counter.
func (s *QuestionService) IncrementViews(ctx context.Context, questionID string) error {
	res := s.db.WithContext(ctx).Model(&models.Question{}).
		Where("id = ?", questionID).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	return nil
}

// ListQuestions filters by substring and tags and orders by one of the
// allowed sort keys. It returns the page and the total match count.
func (s *QuestionService) ListQuestions(ctx context.Context, p ListParams) ([]models.Question, int64, error) {
	if p.Sort == "" {
		p.Sort = SortCreatedAt
	}
	if _, err := ParseSortKey(string(p.Sort)); err != nil {
		return nil, 0, err
	}
	if p.Order == "" {
		p.Order = SortDesc
	}
	if _, err := ParseSortOrder(string(p.Order)); err != nil {
		return nil, 0, err
	}
	page := p.Page.normalize()

	q := s.db.WithContext(ctx).Model(&models.Question{})
	if query := strings.TrimSpace(p.Query); query != "" {
		like := "%" + escapeLike(strings.ToLower(query)) + "%"
		q = q.Where("(LOWER(questions.title) LIKE ? ESCAPE '\\' OR LOWER(questions.content) LIKE ? ESCAPE '\\')", like, like)
	}
	if len(p.Tags) > 0 {
		tags, err := NormalizeTags(p.Tags)
		if err != nil {
			return nil, 0, err
		}
		q = q.Where("questions.id IN (?)", s.db.Table("question_tags").
			Select("question_tags.question_id").
			Joins("JOIN tags ON tags.id = question_tags.tag_id").
			Where("tags.name IN ?", tags))
	}

	// Reusable for both the count and the page query.
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var questions []models.Question
	err := q.Preload("Author").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.name") }).
		Order(p.Sort.orderBy(p.Order)).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "questions", Name: "id"}}).
		Offset(page.offset()).Limit(page.Limit).
		Find(&questions).Error
	if err != nil {
		return nil, 0, err
	}
	return questions, total, nil
}

func (s *QuestionService) QuestionsByUser(ctx context.Context, userID string, page Page) ([]models.Question, error) {
	page = page.normalize()
	var questions []models.Question
	err := s.db.WithContext(ctx).
		Preload("Tags").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(page.offset()).Limit(page.Limit).
		Find(&questions).Error
	return questions, err
}

func (s *QuestionService) QuestionsByTag(ctx context.Context, tagName string, page Page) ([]models.Question, error) {
	questions, _, err := s.ListQuestions(ctx, ListParams{Tags: []string{tagName}, Page: page})
	return questions, err
}

func (s *QuestionService) UnansweredQuestions(ctx context.Context, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.WithContext(ctx).
		Preload("Tags").
		Where("answer_count = 0").
		Order("created_at desc").
		Limit(clampLimit(limit, defaultLimit)).
		Find(&questions).Error
	return questions, err
}
