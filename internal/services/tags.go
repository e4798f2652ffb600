package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/metrics"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

const (
	maxTagNameLength = 50
	maxTagsPerQuest  = 5
)

type TagService struct {
	db     *gorm.DB
	tx     *txRunner
	logger *slog.Logger
}

type TagStatistics struct {
	TotalTags     int64  `json:"total_tags"`
	MostUsedTag   string `json:"most_used_tag,omitempty"`
	MostUsedCount int    `json:"most_used_count"`
}

// NormalizeTags case-folds, trims and de-duplicates tag names and returns them
// sorted.
func NormalizeTags(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			return nil, fmt.Errorf("empty tag name: %w", ErrInvalidRequest)
		}
		if len(name) > maxTagNameLength {
			return nil, fmt.Errorf("tag %q longer than %d characters: %w", name, maxTagNameLength, ErrInvalidRequest)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// diffTags returns the names present only in next (added) and only in prev
// (removed). Both inputs must be normalized.
func diffTags(prev, next []string) (added, removed []string) {
	for _, n := range next {
		if !slices.Contains(prev, n) {
			added = append(added, n)
		}
	}
	for _, p := range prev {
		if !slices.Contains(next, p) {
			removed = append(removed, p)
		}
	}
	return added, removed
}

// attachTags gets-or-creates each tag, links it to the question and bumps its
// usage_count. names must be normalized; sorted order keeps lock order stable.
func attachTags(tx *gorm.DB, questionID string, names []string) error {
	for _, name := range names {
		tag, err := getOrCreateTag(tx, name)
		if err != nil {
			return err
		}
		if err := tx.Create(&models.QuestionTag{QuestionID: questionID, TagID: tag.ID}).Error; err != nil {
			return err
		}
		err = tx.Model(&tag).UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
		if err != nil {
			return err
		}
		metrics.TagUsageChanges.WithLabelValues("increment").Inc()
	}
	return nil
}

const tagCreateAttempts = 3

// getOrCreateTag returns the named tag locked for the rest of the
// transaction. The upsert touches an existing row so it is locked by the
// insert itself; if the tag still vanishes before the read (cleanup removed
// it) the insert is repeated.
func getOrCreateTag(tx *gorm.DB, name string) (models.Tag, error) {
	for range tagCreateAttempts {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"usage_count": gorm.Expr("tags.usage_count")}),
		}).Create(&models.Tag{Name: name}).Error
		if err != nil {
			return models.Tag{}, err
		}

		var tag models.Tag
		err = forUpdate(tx).Take(&tag, "name = ?", name).Error
		if err == nil {
			return tag, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Tag{}, err
		}
	}
	return models.Tag{}, fmt.Errorf("tag %q: %w", name, ErrConcurrencyConflict)
}

// detachTags unlinks the named tags from the question and decrements their
// usage_count, never below zero.
func detachTags(tx *gorm.DB, questionID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	var tags []models.Tag
	err := forUpdate(tx).Where("name IN ?", names).Order("name").Find(&tags).Error
	if err != nil {
		return err
	}

	for _, tag := range tags {
		res := tx.Where("question_id = ? AND tag_id = ?", questionID, tag.ID).Delete(&models.QuestionTag{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		err := tx.Model(&tag).UpdateColumn("usage_count",
			gorm.Expr("CASE WHEN usage_count > 0 THEN usage_count - 1 ELSE 0 END")).Error
		if err != nil {
			return err
		}
		metrics.TagUsageChanges.WithLabelValues("decrement").Inc()
	}
	return nil
}

// tagNamesOf returns the sorted tag names linked to a question.
func tagNamesOf(tx *gorm.DB, questionID string) ([]string, error) {
	var names []string
	err := tx.Model(&models.Tag{}).
		Joins("JOIN question_tags ON question_tags.tag_id = tags.id").
		Where("question_tags.question_id = ?", questionID).
		Order("tags.name").
		Pluck("tags.name", &names).Error
	return names, err
}

func (s *TagService) ListTags(ctx context.Context, page Page) ([]models.Tag, error) {
	page = page.normalize()
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Order("usage_count desc").Order("name").
		Offset(page.offset()).Limit(page.Limit).
		Find(&tags).Error
	return tags, err
}

// PopularTags orders tags by usage_count.
func (s *TagService) PopularTags(ctx context.Context, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Where("usage_count > 0").
		Order("usage_count desc").Order("name").
		Limit(clampLimit(limit, 20)).
		Find(&tags).Error
	return tags, err
}

func (s *TagService) SearchTags(ctx context.Context, query string, limit int) ([]models.Tag, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("empty search: %w", ErrInvalidRequest)
	}
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Where("name LIKE ? ESCAPE '\\'", "%"+escapeLike(query)+"%").
		Order("usage_count desc").Order("name").
		Limit(clampLimit(limit, defaultLimit)).
		Find(&tags).Error
	return tags, err
}

func (s *TagService) GetTag(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.WithContext(ctx).Take(&tag, "name = ?", strings.ToLower(strings.TrimSpace(name))).Error
	if err != nil {
		return nil, notFound(err, "tag")
	}
	return &tag, nil
}

// RelatedTags returns the tags most often used together with name.
func (s *TagService) RelatedTags(ctx context.Context, name string, limit int) ([]models.Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	sub := s.db.Table("question_tags AS qt").
		Select("qt.question_id").
		Joins("JOIN tags t ON t.id = qt.tag_id").
		Where("t.name = ?", name)

	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Select("tags.*").
		Joins("JOIN question_tags ON question_tags.tag_id = tags.id").
		Where("question_tags.question_id IN (?) AND tags.name <> ?", sub, name).
		Group("tags.id").
		Order("COUNT(*) DESC").Order("tags.name").
		Limit(clampLimit(limit, 5)).
		Find(&tags).Error
	return tags, err
}

func (s *TagService) Statistics(ctx context.Context) (TagStatistics, error) {
	db := s.db.WithContext(ctx)
	var stats TagStatistics
	if err := db.Model(&models.Tag{}).Count(&stats.TotalTags).Error; err != nil {
		return TagStatistics{}, err
	}

	var top []models.Tag
	if err := db.Order("usage_count desc").Order("name").Limit(1).Find(&top).Error; err != nil {
		return TagStatistics{}, err
	}
	if len(top) == 1 {
		stats.MostUsedTag = top[0].Name
		stats.MostUsedCount = top[0].UsageCount
	}
	return stats, nil
}

// CleanupUnusedTags deletes tags with usage_count 0 that no question links to.
// It runs outside the hot path.
func (s *TagService) CleanupUnusedTags(ctx context.Context) (int64, error) {
	var removed int64
	err := s.tx.run(ctx, "cleanup_tags", func(tx *gorm.DB) error {
		res := tx.Where("usage_count = ? AND NOT EXISTS (SELECT 1 FROM question_tags qt WHERE qt.tag_id = tags.id)", 0).
			Delete(&models.Tag{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("unused tags removed", "count", removed)
	return removed, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
