package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GeneratedImage is one output of an image generation run.
type GeneratedImage struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	Model      string            `gorm:"type:text;not null" json:"model"`
	Prompt     string            `gorm:"type:text;not null" json:"prompt"`
	ImageURL   string            `gorm:"type:text;not null" json:"image_url"`
	Parameters datatypes.JSONMap `gorm:"type:json" json:"parameters,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

type GeneratedImages []*GeneratedImage
