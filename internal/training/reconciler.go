package training

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/credits"
	"github.com/pictoria-cloud/pictoria/internal/mail"
	"github.com/pictoria-cloud/pictoria/internal/metrics"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Event is the provider's webhook payload. The body is
// attacker-shaped until the signature has been verified, and even
// then only the query parameters of the delivery (set by the
// submitter itself) identify the owning user.
type Event struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Output struct {
		Version string `json:"version"`
		Weights string `json:"weights"`
	} `json:"output"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
		TotalTime   float64 `json:"total_time"`
	} `json:"metrics"`
}

// Delivery is one verified webhook callback: the correlation
// parameters from the query string plus the parsed body.
type Delivery struct {
	UserID    uuid.UUID
	ModelName string
	FileName  string
	Event     Event
}

// Reconciler applies verified callbacks to the persisted job row.
// The terminal transition is a conditional UPDATE guarded by the
// non-terminal statuses, so a redelivered callback affects zero
// rows and triggers neither a second refund nor a second email.
type Reconciler struct {
	db      *gorm.DB
	credits *credits.Service
	store   ObjectStore
	mailer  mail.Sender
	sender  string
}

// NewReconciler constructs a Reconciler with injected
// collaborators. sender is the From address for notifications.
func NewReconciler(conn *gorm.DB, ledger *credits.Service, store ObjectStore, mailer mail.Sender, sender string) *Reconciler {
	return &Reconciler{
		db:      conn,
		credits: ledger,
		store:   store,
		mailer:  mailer,
		sender:  sender,
	}
}

// Apply reconciles one verified delivery. It is safe to call more
// than once for the same event.
func (r *Reconciler) Apply(ctx context.Context, d *Delivery) error {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", d.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.WebhookDeliveriesTotal.WithLabelValues("user_not_found").Inc()
			return ErrUserNotFound
		}
		return errors.Wrap(ErrPersistence, err.Error())
	}

	status := normalizeStatus(d.Event.Status)

	if !status.Terminal() {
		if err := r.transition(ctx, d, map[string]interface{}{"status": status}); err != nil {
			return err
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(status)).Inc()
		return nil
	}

	updates := map[string]interface{}{
		"status": status,
	}
	if t := formatTrainingTime(d.Event.Metrics.PredictTime); t != "" {
		updates["training_time"] = t
	}
	if version := parseVersion(d.Event.Output.Version); version != "" && status == models.ModelStatusSucceeded {
		updates["version"] = version
	}

	applied, err := r.transitionApplied(ctx, d, updates)
	if err != nil {
		return err
	}

	if !applied {
		// Redelivery of an already-reconciled event.
		log.Info(
			"duplicate training callback ignored",
			"user_id", d.UserID,
			"training_id", d.Event.ID,
			"status", status)
		metrics.WebhookDeliveriesTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if status != models.ModelStatusSucceeded {
		if err := r.credits.RefundTraining(ctx, d.UserID, string(status)); err != nil {
			log.Error("failed to refund training credit", "user_id", d.UserID, "error", err)
		}
	}

	r.notify(ctx, &user, d.ModelName, status)
	r.cleanup(ctx, d.FileName)

	metrics.WebhookDeliveriesTotal.WithLabelValues(string(status)).Inc()
	metrics.TrainingDurationSeconds.
		WithLabelValues(string(status)).
		Observe(d.Event.Metrics.PredictTime)

	log.Info(
		"training reconciled",
		"user_id", d.UserID,
		"training_id", d.Event.ID,
		"status", status)

	return nil
}

func (r *Reconciler) transition(ctx context.Context, d *Delivery, updates map[string]interface{}) error {
	_, err := r.transitionApplied(ctx, d, updates)
	return err
}

// transitionApplied performs the guarded status UPDATE and
// reports whether a row actually moved.
func (r *Reconciler) transitionApplied(ctx context.Context, d *Delivery, updates map[string]interface{}) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Model{}).
		Where("user_id = ? AND status IN ?", d.UserID, models.NonTerminalStatuses)

	// The provider's training id is the correlation key; the
	// display name from the query string is only a fallback since
	// names are not unique.
	if d.Event.ID != "" {
		q = q.Where("training_id = ?", d.Event.ID)
	} else {
		q = q.Where("model_name = ?", d.ModelName)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, errors.Wrap(ErrPersistence, res.Error.Error())
	}
	return res.RowsAffected > 0, nil
}

func (r *Reconciler) notify(ctx context.Context, user *models.User, modelName string, status models.ModelStatus) {
	name := user.FullName
	if name == "" {
		name = user.Email
	}

	var body string
	switch status {
	case models.ModelStatusSucceeded:
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>Good news: your model %q finished training and is ready to generate images.</p>",
			name, modelName)
	default:
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>Your model %q training ended with status %q. The spent credit has been returned to your account.</p>",
			name, modelName, status)
	}

	msg := mail.Message{
		From:    r.sender,
		To:      user.Email,
		Subject: fmt.Sprintf("Model training %s", status),
		HTML:    body,
	}

	if err := r.mailer.Send(ctx, msg); err != nil {
		log.Error("failed to send training notification", "user_id", user.ID, "error", err)
	}
}

func (r *Reconciler) cleanup(ctx context.Context, fileName string) {
	if fileName == "" {
		return
	}
	if err := r.store.Delete(ctx, fileName); err != nil {
		log.Error("failed to delete training archive", "file", fileName, "error", err)
	}
}

// normalizeStatus maps the reported status onto the lifecycle.
// Anything unrecognised takes the failure branch so the user gets
// the credit back.
func normalizeStatus(reported string) models.ModelStatus {
	switch s := models.ModelStatus(strings.ToLower(strings.TrimSpace(reported))); s {
	case models.ModelStatusStarting,
		models.ModelStatusProcessing,
		models.ModelStatusSucceeded,
		models.ModelStatusFailed,
		models.ModelStatusCanceled:
		return s
	default:
		return models.ModelStatusFailed
	}
}

// parseVersion extracts the bare version id from the provider's
// "owner/name:version" output reference.
func parseVersion(ref string) string {
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

func formatTrainingTime(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}
