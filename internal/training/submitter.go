package training

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/credits"
	"github.com/pictoria-cloud/pictoria/internal/metrics"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pictoria-cloud/pictoria/internal/replicate"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const triggerWord = "ohwx"

// Provider is the slice of the training provider API the
// lifecycle needs.
type Provider interface {
	CreateModel(ctx context.Context, name string) error
	CreateTraining(ctx context.Context, req replicate.TrainingRequest) (*replicate.Training, error)
	DeleteModel(ctx context.Context, name string) error
	DeleteModelVersion(ctx context.Context, name, version string) error
}

// ObjectStore is the slice of the storage service the lifecycle
// needs: resolving uploaded archives and deleting them once the
// run completes.
type ObjectStore interface {
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Config carries the deployment-level training parameters.
type Config struct {
	Owner          string
	Bucket         string
	WebhookBaseURL string
	Steps          int
	SignedURLTTL   time.Duration
}

// Submitter starts training runs: it reserves a credit, resolves
// the uploaded archive, registers the destination model, starts
// the run with a correlating callback URL, and persists the job
// row with status "starting".
type Submitter struct {
	db       *gorm.DB
	credits  *credits.Service
	provider Provider
	store    ObjectStore
	cfg      Config
}

// NewSubmitter constructs a Submitter with injected collaborators.
func NewSubmitter(conn *gorm.DB, ledger *credits.Service, provider Provider, store ObjectStore, cfg Config) *Submitter {
	return &Submitter{
		db:       conn,
		credits:  ledger,
		provider: provider,
		store:    store,
		cfg:      cfg,
	}
}

// StartRequest describes one training submission.
type StartRequest struct {
	UserID    uuid.UUID
	ModelName string
	Gender    string
	FileKey   string
}

func (r *StartRequest) validate() error {
	if r.UserID == uuid.Nil {
		return errors.Wrap(ErrInvalidRequest, "user id is required")
	}
	if strings.TrimSpace(r.ModelName) == "" {
		return errors.Wrap(ErrInvalidRequest, "model name is required")
	}
	if strings.TrimSpace(r.FileKey) == "" {
		return errors.Wrap(ErrInvalidRequest, "file key is required")
	}
	return nil
}

// Start submits a training run. Exactly one credit is spent on
// success; every failure after the reservation refunds it before
// returning, except a persistence failure after the remote run
// already started, which is surfaced and logged as an
// operational inconsistency.
func (s *Submitter) Start(ctx context.Context, req *StartRequest) (*models.Model, error) {
	if err := req.validate(); err != nil {
		metrics.TrainingSubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if err := s.credits.ReserveTraining(ctx, req.UserID); err != nil {
		metrics.TrainingSubmissionsTotal.WithLabelValues("insufficient_credits").Inc()
		if errors.Is(err, credits.ErrInsufficient) || errors.Is(err, credits.ErrNotFound) {
			return nil, errors.Wrap(ErrInsufficientCredits, err.Error())
		}
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}

	fileName := strings.TrimPrefix(req.FileKey, s.cfg.Bucket+"/")

	downloadURL, err := s.store.SignedDownloadURL(ctx, fileName, s.cfg.SignedURLTTL)
	if err != nil {
		s.rollback(ctx, req.UserID, "upload_unavailable")
		metrics.TrainingSubmissionsTotal.WithLabelValues("upload_unavailable").Inc()
		return nil, errors.Wrap(ErrUploadURLUnavailable, err.Error())
	}

	modelID := fmt.Sprintf(
		"%s_%d_%s",
		req.UserID,
		time.Now().UnixMilli(),
		slugify(req.ModelName))

	if err := s.provider.CreateModel(ctx, modelID); err != nil {
		s.rollback(ctx, req.UserID, "provider_error")
		metrics.TrainingSubmissionsTotal.WithLabelValues("provider_error").Inc()
		return nil, errors.Wrap(ErrProvider, err.Error())
	}

	training, err := s.provider.CreateTraining(ctx, replicate.TrainingRequest{
		Destination: fmt.Sprintf("%s/%s", s.cfg.Owner, modelID),
		Input: map[string]interface{}{
			"input_images":  downloadURL,
			"trigger_word":  triggerWord,
			"steps":         s.cfg.Steps,
			"lora_rank":     16,
			"optimizer":     "adamw8bit",
			"batch_size":    1,
			"resolution":    "512,768,1024",
			"learning_rate": 0.0004,
			"autocaption":   true,
			"subject":       req.Gender,
		},
		WebhookURL: s.webhookURL(req, fileName),
		Events:     []string{"completed"},
	})
	if err != nil {
		s.rollback(ctx, req.UserID, "provider_error")
		metrics.TrainingSubmissionsTotal.WithLabelValues("provider_error").Inc()
		return nil, errors.Wrap(ErrProvider, err.Error())
	}

	model := &models.Model{
		ID:            uuid.New(),
		UserID:        req.UserID,
		ModelID:       modelID,
		ModelName:     strings.TrimSpace(req.ModelName),
		Gender:        req.Gender,
		TrainingID:    training.ID,
		TriggerWord:   triggerWord,
		Status:        models.ModelStatusStarting,
		TrainingSteps: s.cfg.Steps,
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		// The remote run is already started; there is no local row
		// to correlate its webhook against. Surfaced, not
		// compensated.
		log.Error(
			"training started but job row could not be persisted",
			"user_id", req.UserID,
			"training_id", training.ID,
			"error", err)
		metrics.TrainingSubmissionsTotal.WithLabelValues("persistence_error").Inc()
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}

	log.Info(
		"training submitted",
		"user_id", req.UserID,
		"model_id", modelID,
		"training_id", training.ID,
		"status", training.Status)
	metrics.TrainingSubmissionsTotal.WithLabelValues("accepted").Inc()

	return model, nil
}

func (s *Submitter) rollback(ctx context.Context, userID uuid.UUID, reason string) {
	if err := s.credits.RefundTraining(ctx, userID, reason); err != nil {
		log.Error("failed to refund training credit", "user_id", userID, "error", err)
	}
}

func (s *Submitter) webhookURL(req *StartRequest, fileName string) string {
	query := url.Values{}
	query.Set("userId", req.UserID.String())
	query.Set("modelName", req.ModelName)
	query.Set("fileName", fileName)

	return fmt.Sprintf(
		"%s/v1/webhooks/training?%s",
		strings.TrimRight(s.cfg.WebhookBaseURL, "/"),
		query.Encode())
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
