package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

type StatsService struct {
	db *gorm.DB
}

type SiteStats struct {
	TotalUsers     int64 `json:"total_users"`
	TotalQuestions int64 `json:"total_questions"`
	TotalAnswers   int64 `json:"total_answers"`
	TotalVotes     int64 `json:"total_votes"`
	TotalTags      int64 `json:"total_tags"`
	SolvedCount    int64 `json:"solved_questions"`
}

// UserProfile is a user with counts of the content they own.
type UserProfile struct {
	models.User
	QuestionCount int64 `json:"question_count"`
	AnswerCount   int64 `json:"answer_count"`
	AcceptedCount int64 `json:"accepted_count"`
}

func (s *StatsService) Site(ctx context.Context) (SiteStats, error) {
	db := s.db.WithContext(ctx)
	var st SiteStats
	counts := []struct {
		model any
		where string
		dest  *int64
	}{
		{&models.User{}, "", &st.TotalUsers},
		{&models.Question{}, "", &st.TotalQuestions},
		{&models.Answer{}, "", &st.TotalAnswers},
		{&models.Vote{}, "", &st.TotalVotes},
		{&models.Tag{}, "", &st.TotalTags},
		{&models.Question{}, "is_solved = ?", &st.SolvedCount},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, true)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return SiteStats{}, err
		}
	}
	return st, nil
}

// TopUsers orders users by reputation.
func (s *StatsService) TopUsers(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Order("reputation desc").Order("created_at").
		Limit(clampLimit(limit, defaultLimit)).
		Find(&users).Error
	return users, err
}

func (s *StatsService) TopQuestions(ctx context.Context, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.WithContext(ctx).Preload("Author").Preload("Tags").
		Order("vote_count desc").Order("views desc").Order("created_at desc").
		Limit(clampLimit(limit, defaultLimit)).
		Find(&questions).Error
	return questions, err
}

func (s *StatsService) UserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	db := s.db.WithContext(ctx)
	var profile UserProfile
	if err := db.Take(&profile.User, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}
	if err := db.Model(&models.Question{}).Where("user_id = ?", userID).Count(&profile.QuestionCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Answer{}).Where("user_id = ?", userID).Count(&profile.AnswerCount).Error; err != nil {
		return nil, err
	}
	err := db.Model(&models.Answer{}).
		Where("user_id = ? AND is_accepted = ?", userID, true).
		Count(&profile.AcceptedCount).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
