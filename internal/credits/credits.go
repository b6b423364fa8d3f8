package credits

import (
	"context"

	"github.com/google/uuid"
	"github.com/pictoria-cloud/pictoria/internal/metrics"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates no balance row exists for the user.
	ErrNotFound = errors.New("no credit balance for user")
	// ErrInsufficient indicates the balance is exhausted.
	ErrInsufficient = errors.New("insufficient credits")
)

// Service mediates every credit mutation. Reservations are a
// single conditional UPDATE at the persistence layer, so two
// concurrent submissions can never both spend the last credit.
type Service struct {
	db *gorm.DB
}

// New constructs a ledger service backed by the provided DB.
func New(conn *gorm.DB) *Service {
	return &Service{db: conn}
}

// Balance returns the user's current credit balances.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ReserveTraining atomically spends one training credit. It
// returns ErrInsufficient when the balance is zero and leaves
// the row untouched.
func (s *Service) ReserveTraining(ctx context.Context, userID uuid.UUID) error {
	return s.reserve(ctx, userID, "model_credits")
}

// ReserveImage atomically spends one image-generation credit.
func (s *Service) ReserveImage(ctx context.Context, userID uuid.UUID) error {
	return s.reserve(ctx, userID, "image_credits")
}

// RefundTraining returns one training credit to the user. Callers
// are responsible for invoking this at most once per job; the
// reconciler guards it with the job's terminal status transition.
func (s *Service) RefundTraining(ctx context.Context, userID uuid.UUID, reason string) error {
	if err := s.refund(ctx, userID, "model_credits"); err != nil {
		return err
	}
	metrics.CreditRefundsTotal.WithLabelValues(reason).Inc()
	return nil
}

// RefundImage returns one image-generation credit to the user.
func (s *Service) RefundImage(ctx context.Context, userID uuid.UUID, reason string) error {
	if err := s.refund(ctx, userID, "image_credits"); err != nil {
		return err
	}
	metrics.CreditRefundsTotal.WithLabelValues(reason).Inc()
	return nil
}

func (s *Service) reserve(ctx context.Context, userID uuid.UUID, column string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND "+column+" > 0", userID).
		Update(column, gorm.Expr(column+" - 1"))
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		// Zero affected rows is either a missing user or an
		// exhausted balance; look again to tell them apart.
		if _, err := s.Balance(ctx, userID); err != nil {
			return err
		}
		return ErrInsufficient
	}

	return nil
}

func (s *Service) refund(ctx context.Context, userID uuid.UUID, column string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
