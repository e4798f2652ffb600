package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Answer struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	QuestionID string    `gorm:"size:36;not null;index" json:"question_id"`
	UserID     string    `gorm:"size:36;not null;index" json:"user_id"`
	Author     User      `gorm:"foreignKey:UserID" json:"author"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	VoteCount  int       `gorm:"not null;default:0" json:"vote_count"`
	IsAccepted bool      `gorm:"not null;default:false;index" json:"is_accepted"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a *Answer) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type CreateAnswerRequest struct {
	Content string `json:"content" binding:"required"`
}
