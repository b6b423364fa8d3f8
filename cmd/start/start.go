package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/pictoria-cloud/pictoria/api"
	"github.com/pictoria-cloud/pictoria/api/rest/bind"
	"github.com/pictoria-cloud/pictoria/internal/credits"
	"github.com/pictoria-cloud/pictoria/internal/generation"
	"github.com/pictoria-cloud/pictoria/internal/mail"
	"github.com/pictoria-cloud/pictoria/internal/metrics"
	"github.com/pictoria-cloud/pictoria/internal/replicate"
	"github.com/pictoria-cloud/pictoria/internal/storage"
	"github.com/pictoria-cloud/pictoria/internal/sweeper"
	"github.com/pictoria-cloud/pictoria/internal/training"
	"github.com/pictoria-cloud/pictoria/internal/webhook"
	"github.com/pictoria-cloud/pictoria/pkg/db"
	"github.com/pictoria-cloud/pictoria/pkg/env"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "start"
	short   = "Start a pictoria serving instance"
	long    = "This command starts a pictoria serving instance"
	example = "pictoria start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "run", "begin"},
		Example:    example,
		RunE:       start,
	}
)

var cancel context.CancelFunc

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT:
				log.Info("gracefully shutting down due to SIGINT signal")
				shutdown()
				os.Exit(0)
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT)

	var errs = make(chan error)
	ctx, cancelFunc := context.WithCancel(context.Background())
	cancel = cancelFunc

	log.Info("migrating database")
	if err := db.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	metrics.Register()

	vars := env.Variables()
	conn := db.Connection()

	provider := replicate.New(replicate.Config{
		BaseURL:  vars.ReplicateBaseURL,
		Token:    vars.ReplicateToken,
		Owner:    vars.ModelOwner,
		Trainer:  vars.TrainerModel,
		Version:  vars.TrainerVersion,
		Hardware: vars.TrainingHardware,
	}, nil)

	store := storage.New(storage.Config{
		BaseURL:    vars.StorageURL,
		ServiceKey: vars.StorageServiceKey,
		Bucket:     vars.StorageBucket,
	}, nil)

	mailer := mail.New(mail.Config{
		BaseURL: vars.MailBaseURL,
		APIKey:  vars.MailAPIKey,
	}, nil)

	ledger := credits.New(conn)

	services := bind.Services{
		SessionSecret: vars.SessionSecret,
		Submitter: training.NewSubmitter(conn, ledger, provider, store, training.Config{
			Owner:          vars.ModelOwner,
			Bucket:         vars.StorageBucket,
			WebhookBaseURL: vars.WebhookBaseURL,
			Steps:          vars.TrainingSteps,
			SignedURLTTL:   vars.SignedURLTTL,
		}),
		Reconciler: training.NewReconciler(conn, ledger, store, mailer, vars.MailSender),
		Catalog:    training.NewCatalog(conn, provider),
		Generator:  generation.New(conn, ledger, provider),
		Uploads:    store,
		Verifier:   webhook.NewVerifier(provider),
	}

	sweep, err := sweeper.New(conn, ledger, vars.SweepSchedule, vars.TrainingTimeout)
	if err != nil {
		log.Fatal("sweeper configuration failure", "error", err)
	}

	go func() {
		log.Info("launching stale training sweep")
		sweep.Run(ctx)
	}()

	go func() {
		log.Info("spinning up api")
		errs <- api.Start(services)
	}()

	defer shutdown()

	return <-errs
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
	if err := api.Shutdown(); err != nil {
		log.Error("api shutdown failure", "error", err)
	}
}
