package training

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/credits"
	"github.com/pictoria-cloud/pictoria/internal/mail"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errSendFailed = errors.New("email provider down")

type fakeSender struct {
	sent []mail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func seedModel(t *testing.T, db *gorm.DB, userID uuid.UUID, trainingID string) *models.Model {
	t.Helper()
	model := &models.Model{
		ID:          uuid.New(),
		UserID:      userID,
		ModelID:     "dest_" + trainingID,
		ModelName:   "My Headshots",
		TrainingID:  trainingID,
		TriggerWord: "ohwx",
		Status:      models.ModelStatusStarting,
	}
	require.NoError(t, db.Create(model).Error)
	return model
}

func succeededDelivery(userID uuid.UUID, trainingID string) *Delivery {
	d := &Delivery{
		UserID:    userID,
		ModelName: "My Headshots",
		FileName:  userID.String() + "/123_images.zip",
	}
	d.Event.ID = trainingID
	d.Event.Status = "succeeded"
	d.Event.Output.Version = "pictoria/dest:a1b2c3"
	d.Event.Metrics.PredictTime = 1042.7
	return d
}

func failedDelivery(userID uuid.UUID, trainingID, status string) *Delivery {
	d := &Delivery{
		UserID:    userID,
		ModelName: "My Headshots",
		FileName:  userID.String() + "/123_images.zip",
	}
	d.Event.ID = trainingID
	d.Event.Status = status
	return d
}

func TestApplySucceeded(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	store := &fakeStore{}
	sender := &fakeSender{}
	rec := NewReconciler(db, ledger, store, sender, "Pictoria AI <noreply@example.com>")

	user := seedUser(t, db, 0) // credit already spent at submission
	model := seedModel(t, db, user.ID, "trn_ok")

	require.NoError(t, rec.Apply(context.Background(), succeededDelivery(user.ID, "trn_ok")))

	var stored models.Model
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusSucceeded, stored.Status)
	require.Equal(t, "a1b2c3", stored.Version)
	require.NotEmpty(t, stored.TrainingTime)

	// success does not touch credits
	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, balance.ModelCredits)

	// one email, archive deleted
	require.Len(t, sender.sent, 1)
	require.Equal(t, user.Email, sender.sent[0].To)
	require.Equal(t, []string{user.ID.String() + "/123_images.zip"}, store.deleted)
}

func TestApplyFailedRefunds(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	store := &fakeStore{}
	sender := &fakeSender{}
	rec := NewReconciler(db, ledger, store, sender, "Pictoria AI <noreply@example.com>")

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_bad")

	require.NoError(t, rec.Apply(context.Background(), failedDelivery(user.ID, "trn_bad", "failed")))

	var stored models.Model
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusFailed, stored.Status)

	// net credit delta over the lifecycle is zero
	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance.ModelCredits)

	require.Len(t, sender.sent, 1)
	require.Equal(t, []string{user.ID.String() + "/123_images.zip"}, store.deleted)
}

func TestApplyCanceledRefunds(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	rec := NewReconciler(db, ledger, &fakeStore{}, &fakeSender{}, "from")

	user := seedUser(t, db, 0)
	seedModel(t, db, user.ID, "trn_c")

	require.NoError(t, rec.Apply(context.Background(), failedDelivery(user.ID, "trn_c", "canceled")))

	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance.ModelCredits)
}

func TestApplyDuplicateDeliveryIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	store := &fakeStore{}
	sender := &fakeSender{}
	rec := NewReconciler(db, ledger, store, sender, "from")

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_dup")

	delivery := failedDelivery(user.ID, "trn_dup", "failed")
	require.NoError(t, rec.Apply(context.Background(), delivery))
	require.NoError(t, rec.Apply(context.Background(), delivery))

	var stored models.Model
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusFailed, stored.Status)

	// exactly one refund, one email
	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance.ModelCredits)
	require.Len(t, sender.sent, 1)
}

func TestApplyUnknownStatusTakesFailureBranch(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	sender := &fakeSender{}
	rec := NewReconciler(db, ledger, &fakeStore{}, sender, "from")

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_odd")

	require.NoError(t, rec.Apply(context.Background(), failedDelivery(user.ID, "trn_odd", "exploded")))

	var stored models.Model
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusFailed, stored.Status)

	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance.ModelCredits)
	require.Len(t, sender.sent, 1)
}

func TestApplyNonTerminalStatusOnlyMovesStatus(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	store := &fakeStore{}
	sender := &fakeSender{}
	rec := NewReconciler(db, ledger, store, sender, "from")

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_mid")

	require.NoError(t, rec.Apply(context.Background(), failedDelivery(user.ID, "trn_mid", "processing")))

	var stored models.Model
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusProcessing, stored.Status)

	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, balance.ModelCredits)
	require.Empty(t, sender.sent)
	require.Empty(t, store.deleted)

	// terminal transition still possible afterwards
	require.NoError(t, rec.Apply(context.Background(), succeededDelivery(user.ID, "trn_mid")))
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusSucceeded, stored.Status)
}

func TestApplyUnknownUser(t *testing.T) {
	db := openTestDB(t)
	rec := NewReconciler(db, credits.New(db), &fakeStore{}, &fakeSender{}, "from")

	err := rec.Apply(context.Background(), failedDelivery(uuid.New(), "trn_x", "failed"))
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestApplyFallsBackToModelName(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	rec := NewReconciler(db, ledger, &fakeStore{}, &fakeSender{}, "from")

	user := seedUser(t, db, 0)
	model := seedModel(t, db, user.ID, "trn_name")

	delivery := failedDelivery(user.ID, "", "failed")
	delivery.Event.ID = ""
	require.NoError(t, rec.Apply(context.Background(), delivery))

	var stored models.Model
	require.NoError(t, db.First(&stored, "id = ?", model.ID).Error)
	require.Equal(t, models.ModelStatusFailed, stored.Status)
}

func TestApplyEmailFailureDoesNotFailReconciliation(t *testing.T) {
	db := openTestDB(t)
	ledger := credits.New(db)
	sender := &fakeSender{err: errSendFailed}
	rec := NewReconciler(db, ledger, &fakeStore{}, sender, "from")

	user := seedUser(t, db, 0)
	seedModel(t, db, user.ID, "trn_mail")

	require.NoError(t, rec.Apply(context.Background(), failedDelivery(user.ID, "trn_mail", "failed")))

	balance, err := ledger.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance.ModelCredits)
}
