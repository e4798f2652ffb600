package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TargetKind string

const (
	TargetQuestion TargetKind = "question"
	TargetAnswer   TargetKind = "answer"
)

func (k TargetKind) Valid() bool {
	return k == TargetQuestion || k == TargetAnswer
}

// Vote is the single current vote of a user on a target. A missing row means
// "no vote"; Value is never 0.
type Vote struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	VoterID    string     `gorm:"size:36;not null;uniqueIndex:idx_votes_voter_target,priority:1" json:"voter_id"`
	TargetKind TargetKind `gorm:"size:16;not null;uniqueIndex:idx_votes_voter_target,priority:2;index:idx_votes_target,priority:1" json:"target_kind"`
	TargetID   string     `gorm:"size:36;not null;uniqueIndex:idx_votes_voter_target,priority:3;index:idx_votes_target,priority:2" json:"target_id"`
	Value      int        `gorm:"not null;check:chk_votes_value,value IN (-1, 1)" json:"value"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (v *Vote) BeforeCreate(_ *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// VoteRequest is the transport shape of a vote. Exactly one of QuestionID and
// AnswerID must be set; Value 0 means "remove my vote".
type VoteRequest struct {
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id"`
	Value      *int   `json:"value" binding:"required"`
}

type VoteResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ResultingValue int    `json:"resulting_value"`
	VoteCount      int    `json:"vote_count"`
}
