package models

import (
	"time"

	"github.com/google/uuid"
)

// User holds the account row and its credit balances. Credits
// are only ever mutated through conditional updates so that
// concurrent submissions cannot overdraw the balance.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"type:text;uniqueIndex;not null" json:"email"`
	FullName     string    `gorm:"type:text" json:"full_name"`
	ModelCredits int       `gorm:"not null;default:0" json:"model_credits"`
	ImageCredits int       `gorm:"not null;default:0" json:"image_credits"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}
