package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TrainingSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pictoria_training_submissions_total",
			Help: "Total number of training submissions by outcome.",
		},
		[]string{"outcome"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pictoria_webhook_deliveries_total",
			Help: "Total number of training webhook deliveries by result.",
		},
		[]string{"result"},
	)

	CreditRefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pictoria_credit_refunds_total",
			Help: "Total number of credit refunds by reason.",
		},
		[]string{"reason"},
	)

	TrainingDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pictoria_training_duration_seconds",
			Help:    "Duration of completed training runs in seconds.",
			Buckets: []float64{60, 300, 600, 1200, 1800, 3600, 7200, 14400},
		},
		[]string{"status"},
	)

	SweepExpirationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pictoria_sweep_expirations_total",
			Help: "Total number of stale training runs expired by the sweeper.",
		},
	)
)

// Register registers all custom pictoria metrics with the default
// Prometheus registry.
func Register() {
	prometheus.MustRegister(
		TrainingSubmissionsTotal,
		WebhookDeliveriesTotal,
		CreditRefundsTotal,
		TrainingDurationSeconds,
		SweepExpirationsTotal,
	)
}
