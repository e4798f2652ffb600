package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Question struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	UserID      string `gorm:"size:36;not null;index" json:"user_id"`
	Author      User   `gorm:"foreignKey:UserID" json:"author"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Content     string `gorm:"type:text;not null" json:"content"`
	Views       int    `gorm:"not null;default:0" json:"views"`
	VoteCount   int    `gorm:"not null;default:0;index" json:"vote_count"`
	AnswerCount int    `gorm:"not null;default:0" json:"answer_count"`

	// IsSolved is true iff AcceptedAnswerID is set.
	IsSolved         bool    `gorm:"not null;default:false" json:"is_solved"`
	AcceptedAnswerID *string `gorm:"size:36" json:"accepted_answer_id,omitempty"`

	Tags    []Tag    `gorm:"many2many:question_tags;" json:"tags"`
	Answers []Answer `gorm:"foreignKey:QuestionID" json:"answers,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *Question) BeforeCreate(_ *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// QuestionTag is the join row between a question and a tag.
type QuestionTag struct {
	QuestionID string `gorm:"primaryKey;size:36"`
	TagID      string `gorm:"primaryKey;size:36;index"`
}

func (QuestionTag) TableName() string {
	return "question_tags"
}

type CreateQuestionRequest struct {
	Title    string   `json:"title" binding:"required"`
	Content  string   `json:"content" binding:"required"`
	TagNames []string `json:"tag_names" binding:"required"`
}

type UpdateQuestionRequest struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	TagNames *[]string `json:"tag_names"`
}
