package generation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/credits"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrInvalidRequest indicates a generation request with
	// missing or unusable fields.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrInsufficientCredits indicates the user has no image
	// credits left to spend.
	ErrInsufficientCredits = errors.New("insufficient image credits")
	// ErrProvider indicates the inference provider failed.
	ErrProvider = errors.New("generation provider failure")
)

// Provider runs one synchronous prediction and returns the output
// image URLs.
type Provider interface {
	Run(ctx context.Context, model string, input map[string]interface{}) ([]string, error)
}

// Service spends one image credit per generation, runs the
// prediction, and records the outputs. A provider failure refunds
// the credit before returning.
type Service struct {
	db       *gorm.DB
	credits  *credits.Service
	provider Provider
}

// New constructs a generation service with injected collaborators.
func New(conn *gorm.DB, ledger *credits.Service, provider Provider) *Service {
	return &Service{db: conn, credits: ledger, provider: provider}
}

// Request describes one image generation run.
type Request struct {
	UserID         uuid.UUID `json:"-"`
	Model          string    `json:"model"`
	Prompt         string    `json:"prompt"`
	Guidance       float64   `json:"guidance"`
	NumOutputs     int       `json:"num_outputs"`
	AspectRatio    string    `json:"aspect_ratio"`
	OutputFormat   string    `json:"output_format"`
	OutputQuality  int       `json:"output_quality"`
	InferenceSteps int       `json:"num_inference_steps"`
}

func (r *Request) validate() error {
	if r.UserID == uuid.Nil {
		return errors.Wrap(ErrInvalidRequest, "user id is required")
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.Wrap(ErrInvalidRequest, "model is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.Wrap(ErrInvalidRequest, "prompt is required")
	}
	return nil
}

// Generate runs one prediction and stores the outputs.
func (s *Service) Generate(ctx context.Context, req *Request) (models.GeneratedImages, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if err := s.credits.ReserveImage(ctx, req.UserID); err != nil {
		if errors.Is(err, credits.ErrInsufficient) || errors.Is(err, credits.ErrNotFound) {
			return nil, errors.Wrap(ErrInsufficientCredits, err.Error())
		}
		return nil, err
	}

	input := map[string]interface{}{
		"prompt":              req.Prompt,
		"go_fast":             true,
		"guidance":            req.Guidance,
		"megapixels":          "1",
		"num_outputs":         req.NumOutputs,
		"aspect_ratio":        req.AspectRatio,
		"output_format":       req.OutputFormat,
		"output_quality":      req.OutputQuality,
		"prompt_strength":     0.8,
		"num_inference_steps": req.InferenceSteps,
	}

	outputs, err := s.provider.Run(ctx, req.Model, input)
	if err != nil {
		if refundErr := s.credits.RefundImage(ctx, req.UserID, "generation_failed"); refundErr != nil {
			log.Error("failed to refund image credit", "user_id", req.UserID, "error", refundErr)
		}
		return nil, errors.Wrap(ErrProvider, err.Error())
	}

	images := make(models.GeneratedImages, 0, len(outputs))
	for _, url := range outputs {
		images = append(images, &models.GeneratedImage{
			ID:       uuid.New(),
			UserID:   req.UserID,
			Model:    req.Model,
			Prompt:   req.Prompt,
			ImageURL: url,
			Parameters: datatypes.JSONMap{
				"guidance":            req.Guidance,
				"aspect_ratio":        req.AspectRatio,
				"output_format":       req.OutputFormat,
				"num_inference_steps": req.InferenceSteps,
			},
		})
	}

	if len(images) > 0 {
		if err := s.db.WithContext(ctx).Create(images).Error; err != nil {
			return nil, err
		}
	}

	log.Info("images generated", "user_id", req.UserID, "model", req.Model, "count", len(images))
	return images, nil
}

// List returns the user's generated images, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) (models.GeneratedImages, error) {
	var images models.GeneratedImages
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&images).Error
	return images, err
}
