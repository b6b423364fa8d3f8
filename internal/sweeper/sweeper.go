package sweeper

import (
	"context"
	"time"

	"github.com/pictoria-cloud/pictoria/internal/credits"
	"github.com/pictoria-cloud/pictoria/internal/metrics"
	"github.com/pictoria-cloud/pictoria/internal/models"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/robfig/cron"
	"gorm.io/gorm"
)

// Sweeper expires training runs the provider never called back
// about. A run stuck non-terminal past the timeout is marked
// failed through the same guarded transition the reconciler uses,
// so a late webhook after a sweep reconciles to a no-op.
type Sweeper struct {
	db       *gorm.DB
	credits  *credits.Service
	schedule cron.Schedule
	timeout  time.Duration
}

// New constructs a Sweeper from a five-field cron expression.
func New(conn *gorm.DB, ledger *credits.Service, expr string, timeout time.Duration) (*Sweeper, error) {
	parser := cron.NewParser(
		cron.Minute |
			cron.Hour |
			cron.Dom |
			cron.Month |
			cron.Dow,
	)

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}

	return &Sweeper{
		db:       conn,
		credits:  ledger,
		schedule: sched,
		timeout:  timeout,
	}, nil
}

// Run sweeps on the configured schedule until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info("sweeper running", "timeout", s.timeout)

	for {
		select {
		case <-time.After(time.Until(s.schedule.Next(time.Now()))):
			if err := s.Sweep(ctx); err != nil {
				log.Error("sweep failure", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep expires every stale non-terminal run once, refunding one
// training credit per expired run.
func (s *Sweeper) Sweep(ctx context.Context) error {
	deadline := time.Now().Add(-s.timeout)

	var stale models.Models
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", models.NonTerminalStatuses, deadline).
		Find(&stale).Error
	if err != nil {
		return err
	}

	for _, model := range stale {
		res := s.db.WithContext(ctx).
			Model(&models.Model{}).
			Where("id = ? AND status IN ?", model.ID, models.NonTerminalStatuses).
			Update("status", models.ModelStatusFailed)
		if res.Error != nil {
			log.Error("failed to expire training", "id", model.ID, "error", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			// A webhook won the race; nothing to do.
			continue
		}

		if err := s.credits.RefundTraining(ctx, model.UserID, "expired"); err != nil {
			log.Error("failed to refund expired training", "id", model.ID, "error", err)
		}

		metrics.SweepExpirationsTotal.Inc()
		log.Warn(
			"training expired without a callback",
			"id", model.ID,
			"user_id", model.UserID,
			"training_id", model.TrainingID)
	}

	return nil
}
