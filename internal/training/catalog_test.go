package training

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCatalogListScopedToUser(t *testing.T) {
	db := openTestDB(t)
	cat := NewCatalog(db, &fakeProvider{})

	user := seedUser(t, db, 0)
	other := seedUser(t, db, 0)
	seedModel(t, db, user.ID, "trn_1")
	seedModel(t, db, other.ID, "trn_2")

	list, err := cat.List(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "trn_1", list[0].TrainingID)
}

func TestCatalogDeleteRemovesProviderArtifactsFirst(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{}
	cat := NewCatalog(db, provider)

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_del")
	require.NoError(t, db.Model(model).Updates(map[string]interface{}{
		"status":  models.ModelStatusSucceeded,
		"version": "a1b2c3",
	}).Error)

	require.NoError(t, cat.Delete(context.Background(), user.ID, model.ID))

	require.Equal(t, []string{model.ModelID + ":a1b2c3"}, provider.deletedVersions)
	require.Equal(t, []string{model.ModelID}, provider.deletedModels)

	var count int64
	require.NoError(t, db.Model(&models.Model{}).Where("id = ?", model.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestCatalogDeleteWithoutVersionSkipsVersionDelete(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{}
	cat := NewCatalog(db, provider)

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_nov")

	require.NoError(t, cat.Delete(context.Background(), user.ID, model.ID))
	require.Empty(t, provider.deletedVersions)
	require.Equal(t, []string{model.ModelID}, provider.deletedModels)
}

func TestCatalogDeleteUnknownModel(t *testing.T) {
	db := openTestDB(t)
	cat := NewCatalog(db, &fakeProvider{})
	user := seedUser(t, db, 0)

	err := cat.Delete(context.Background(), user.ID, uuid.New())
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestCatalogDeleteOtherUsersModel(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{}
	cat := NewCatalog(db, provider)

	owner := seedUser(t, db, 0)
	intruder := seedUser(t, db, 0)
	model := seedModel(t, db, owner.ID, "trn_own")

	err := cat.Delete(context.Background(), intruder.ID, model.ID)
	require.ErrorIs(t, err, ErrModelNotFound)
	require.Empty(t, provider.deletedModels)
}
