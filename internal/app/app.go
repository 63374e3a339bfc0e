// Package app wires the service together: store, mailer, scheduler, HTTP
// API and background maintenance.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SubinY/email-sender/internal/api"
	"github.com/SubinY/email-sender/internal/clock"
	"github.com/SubinY/email-sender/internal/config"
	"github.com/SubinY/email-sender/internal/mailer"
	"github.com/SubinY/email-sender/internal/metrics"
	"github.com/SubinY/email-sender/internal/models"
	"github.com/SubinY/email-sender/internal/planner"
	"github.com/SubinY/email-sender/internal/scheduler"
	"github.com/SubinY/email-sender/internal/secrets"
	"github.com/SubinY/email-sender/internal/store"
)

// deletedTaskRetention is how long soft-deleted task records are kept
// before the hourly maintenance job purges them.
const deletedTaskRetention = 7 * 24 * time.Hour

// App is the assembled service
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	cron      *cron.Cron
}

// storeAccounts adapts the sender repository to the SMTP mailer's
// credential lookup
type storeAccounts struct {
	senders *store.SenderRepository
}

func (a storeAccounts) Account(senderID string) (*models.Sender, string, error) {
	sender, err := a.senders.GetByID(senderID)
	if err != nil {
		return nil, "", err
	}
	if sender == nil {
		return nil, "", fmt.Errorf("sender %s not found", senderID)
	}
	secret, err := a.senders.Secret(sender)
	if err != nil {
		return nil, "", err
	}
	return sender, secret, nil
}

// New assembles the application from configuration
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	box, err := secrets.NewBox(cfg.Secrets.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise secrets: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path, box)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Runtime state does not survive restart; tasks left running by a
	// previous process need a manual restart (calculate + start).
	if interrupted, err := st.Tasks.MarkInterrupted(); err != nil {
		logger.Error("failed to mark interrupted tasks", "error", err)
	} else if len(interrupted) > 0 {
		logger.Warn("tasks interrupted by restart marked paused, start them again manually",
			"task_ids", interrupted,
		)
	}

	clk := clock.NewReal()

	var m mailer.Mailer
	switch cfg.Mailer.Mode {
	case "smtp":
		smtpMailer := mailer.NewSMTP(mailer.SMTPConfig{
			Timeout:         cfg.Mailer.SendTimeout.Std(),
			MaxPerMinute:    cfg.Mailer.MaxPerMinute,
			MaxPerHour:      cfg.Mailer.MaxPerHour,
			GlobalPerSecond: cfg.Mailer.GlobalPerSecond,
		}, storeAccounts{senders: st.Senders}, clk, logger)

		if cfg.Mailer.DKIM.Enabled {
			keyring := mailer.NewKeyring(cfg.Mailer.DKIM.Selector)
			for domain, keyFile := range cfg.Mailer.DKIM.Domains {
				if err := keyring.AddDomain(domain, keyFile); err != nil {
					st.Close()
					return nil, err
				}
			}
			smtpMailer.SetKeyring(keyring)
			logger.Info("DKIM signing enabled",
				"selector", cfg.Mailer.DKIM.Selector,
				"domains", keyring.Domains(),
			)
		}
		m = smtpMailer
	default:
		m = mailer.NewSimulated(mailer.SimulatedConfig{
			LatencyMin:         cfg.Mailer.LatencyMin.Std(),
			LatencyMax:         cfg.Mailer.LatencyMax.Std(),
			SuccessProbability: cfg.Mailer.SuccessProbability,
			MaxPerMinute:       cfg.Mailer.MaxPerMinute,
			MaxPerHour:         cfg.Mailer.MaxPerHour,
		}, clk, logger)
	}
	logger.Info("mailer ready", "mode", cfg.Mailer.Mode)

	sched := scheduler.New(scheduler.Config{
		CompletionCheckInterval: cfg.Scheduler.CompletionCheckInterval.Std(),
	}, clk, m, st, logger)
	sched.SetCompletionFunc(func(taskID string) {
		if err := st.Tasks.UpdateStatus(taskID, models.TaskCompleted); err != nil {
			logger.Error("failed to persist completed status", "task_id", taskID, "error", err)
		}
	})

	var metricsCollector *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.New()
		sched.SetObserver(metricsCollector)
	}

	pl := planner.New(logger)
	apiServer := api.NewServer(&cfg.API, st, pl, sched, metricsCollector, cfg.Metrics.Path, logger)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		scheduler: sched,
		apiServer: apiServer,
		cron:      cron.New(),
	}
	a.setupMaintenance()

	return a, nil
}

// setupMaintenance registers periodic background jobs
func (a *App) setupMaintenance() {
	_, err := a.cron.AddFunc("@hourly", func() {
		purged, err := a.store.Tasks.PurgeDeleted(deletedTaskRetention)
		if err != nil {
			a.logger.Error("failed to purge deleted tasks", "error", err)
			return
		}
		if purged > 0 {
			a.logger.Info("purged deleted tasks", "count", purged)
		}
	})
	if err != nil {
		a.logger.Error("failed to register maintenance job", "error", err)
	}
}

// Run starts the service and blocks until the context is cancelled
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	a.logger.Info("service started", "addr", a.cfg.API.ListenAddr)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shut down API server", "error", err)
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
	}

	a.scheduler.Reset()

	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}

	a.logger.Info("shutdown complete")
}
