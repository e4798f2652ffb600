package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Tag struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Name        string `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Color       string `gorm:"size:7;default:'#3B82F6'" json:"color"`

	// UsageCount is the number of live questions carrying this tag.
	UsageCount int       `gorm:"not null;default:0;index" json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (t *Tag) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
