package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesdesk_backend/internal/events"
	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/http/router"
	"salesdesk_backend/internal/notification"
	notifemail "salesdesk_backend/internal/notification/email"
	"salesdesk_backend/internal/pipelines"
	"salesdesk_backend/internal/priorities"
	"salesdesk_backend/internal/records"
	recordsdomain "salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/routing"
	"salesdesk_backend/internal/scheduler"
	"salesdesk_backend/internal/scoring"
	scoringservice "salesdesk_backend/internal/scoring/service"
	"salesdesk_backend/internal/settings"
	"salesdesk_backend/internal/teams"
	"salesdesk_backend/migrations"
	"salesdesk_backend/platform/config"
	"salesdesk_backend/platform/db"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	enqueuer, closeScheduler := initEnqueuer(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	settingsModule := settings.NewModule(pool)
	teamsModule := teams.NewModule(pool)
	pipelinesModule := pipelines.NewModule(pool, val, log)
	prioritiesModule := priorities.NewModule(pool, val, log)
	routingModule := routing.NewModule(pool, teamsModule.Service(), val, log)

	recordsModule := records.NewModule(
		pool,
		pipelinesModule.Service(),
		nil, // scorer wired below, after the scoring module exists
		prioritiesModule.Service(),
		routingModule.Engine(),
		teamsModule.Service(),
		settingsModule.Service(),
		eventBus,
		cfg.DefaultRegion,
		val,
		log,
	)

	scoringModule := scoring.NewModule(
		pool,
		recordsModule.Repository(),
		prioritiesModule.Service(),
		enqueuer,
		cfg.GetRescorePageSize(),
		val,
		log,
	)
	recordsModule.Service().SetScorer(scoringModule.Service())

	// Notification module subscribes to domain events (not HTTP-facing)
	var sender notifemail.Sender
	if cfg.GetEmailEnabled() {
		sender = notifemail.NewSMTPSender(cfg)
		log.Info("email notifications enabled", "host", cfg.SMTPHost)
	} else {
		log.Warn("email notifications disabled")
	}
	notification.New(eventBus, sender, teamsModule.Service(), recordsModule.Service(), settingsModule.Service(), log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			settingsModule,
			teamsModule,
			pipelinesModule,
			prioritiesModule,
			routingModule,
			recordsModule,
			scoringModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		<-shutdownCtx.Done()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// disabledEnqueuer stands in when redis is not configured so rescore
// requests fail loudly instead of silently vanishing.
type disabledEnqueuer struct{}

func (disabledEnqueuer) EnqueueRescore(context.Context, uuid.UUID, recordsdomain.Module) error {
	return errors.New("rescore queue not configured, set REDIS_URL")
}

func initEnqueuer(cfg config.SchedulerConfig, log *logger.Logger) (scoringservice.Enqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; rescore jobs disabled")
		return disabledEnqueuer{}, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return disabledEnqueuer{}, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
