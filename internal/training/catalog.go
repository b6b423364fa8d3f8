package training

import (
	"context"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Catalog serves the user-facing model list and deletion. A
// deletion removes the trained version and destination model from
// the provider before dropping the local row; provider failures
// abort the deletion so the user can retry.
type Catalog struct {
	db       *gorm.DB
	provider Provider
}

// NewCatalog constructs a Catalog with injected collaborators.
func NewCatalog(conn *gorm.DB, provider Provider) *Catalog {
	return &Catalog{db: conn, provider: provider}
}

// List returns the user's models, newest first.
func (c *Catalog) List(ctx context.Context, userID uuid.UUID) (models.Models, error) {
	var list models.Models
	err := c.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return list, nil
}

// Delete removes one of the user's models.
func (c *Catalog) Delete(ctx context.Context, userID, id uuid.UUID) error {
	var model models.Model
	err := c.db.WithContext(ctx).
		First(&model, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrModelNotFound
		}
		return errors.Wrap(ErrPersistence, err.Error())
	}

	if model.Version != "" {
		if err := c.provider.DeleteModelVersion(ctx, model.ModelID, model.Version); err != nil {
			return errors.Wrap(ErrProvider, err.Error())
		}
	}

	if model.ModelID != "" {
		if err := c.provider.DeleteModel(ctx, model.ModelID); err != nil {
			return errors.Wrap(ErrProvider, err.Error())
		}
	}

	if err := c.db.WithContext(ctx).Delete(&models.Model{}, "id = ?", model.ID).Error; err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}

	log.Info("model deleted", "user_id", userID, "model_id", model.ModelID)
	return nil
}
