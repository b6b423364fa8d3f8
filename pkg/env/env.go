package env

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for pictoria.
func Process() error {
	if err := envconfig.Process("pictoria", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by pictoria.
type Environment struct {
	LogLevel string `default:"info"`
	Port     int    `default:"8080"`

	DatabaseType string `default:"postgres"`
	DatabaseDSN  string `default:"host=postgres user=postgres password=postgres dbname=pictoria port=5432 sslmode=disable"`

	// Training provider.
	ReplicateToken   string        `default:""`
	ReplicateBaseURL string        `default:"https://api.replicate.com/v1"`
	ModelOwner       string        `default:"pictoria"`
	TrainerModel     string        `default:"ostris/flux-dev-lora-trainer"`
	TrainerVersion   string        `default:"e440909d3512c31646ee2e0c7d6f6f4923224863a6a10c494606e79fb5844497"`
	TrainingHardware string        `default:"gpu-a100-large"`
	TrainingSteps    int           `default:"1200"`
	TrainingTimeout  time.Duration `default:"6h"`

	// Public base URL the provider calls back on.
	WebhookBaseURL string `default:""`

	// Object storage (supabase-compatible).
	StorageURL        string        `default:""`
	StorageServiceKey string        `default:""`
	StorageBucket     string        `default:"training_data"`
	SignedURLTTL      time.Duration `default:"1h"`

	// Transactional email.
	MailBaseURL string `default:"https://api.resend.com"`
	MailAPIKey  string `default:""`
	MailSender  string `default:"Pictoria AI <onboarding@resend.dev>"`

	// Session bearer tokens.
	SessionSecret string `default:""`

	// Stale training sweep.
	SweepSchedule string `default:"*/10 * * * *"`
}
