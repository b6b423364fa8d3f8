package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelStatus enumerates the lifecycle of a training run.
type ModelStatus string

const (
	ModelStatusStarting   ModelStatus = "starting"
	ModelStatusProcessing ModelStatus = "processing"
	ModelStatusSucceeded  ModelStatus = "succeeded"
	ModelStatusFailed     ModelStatus = "failed"
	ModelStatusCanceled   ModelStatus = "canceled"
)

// Terminal reports whether no further transitions may occur.
func (s ModelStatus) Terminal() bool {
	switch s {
	case ModelStatusSucceeded, ModelStatusFailed, ModelStatusCanceled:
		return true
	}
	return false
}

// NonTerminalStatuses guards every status transition: an UPDATE
// constrained to these values affects zero rows once a terminal
// status has been recorded.
var NonTerminalStatuses = []ModelStatus{
	ModelStatusStarting,
	ModelStatusProcessing,
}

// Model is one custom image-generation model and the training
// run that produces it. The row is created by the submitter with
// status "starting" and mutated only by the reconciler (or the
// stale sweep) when the provider reports a terminal status.
type Model struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID   `gorm:"type:uuid;index;not null" json:"user_id"`
	ModelID       string      `gorm:"type:text;index;not null" json:"model_id"`
	ModelName     string      `gorm:"type:text;not null" json:"model_name"`
	Gender        string      `gorm:"type:text" json:"gender"`
	TrainingID    string      `gorm:"type:text;uniqueIndex" json:"training_id"`
	TriggerWord   string      `gorm:"type:text" json:"trigger_word"`
	Status        ModelStatus `gorm:"type:text;index;not null" json:"status"`
	TrainingSteps int         `gorm:"not null;default:0" json:"training_steps"`
	TrainingTime  string      `gorm:"type:text" json:"training_time,omitempty"`
	Version       string      `gorm:"type:text" json:"version,omitempty"`
	CreatedAt     time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"not null" json:"updated_at"`
}

type Models []*Model
