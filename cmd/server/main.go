package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concilia/internal/classify"
	"concilia/internal/identity"
	jwttoken "concilia/internal/jwt_token"
	"concilia/internal/matching"
	"concilia/internal/platform/config"
	"concilia/internal/platform/httpserver"
	"concilia/internal/platform/logger"
	"concilia/internal/platform/metrics"
	"concilia/internal/platform/middleware"
	"concilia/internal/platform/redis"
	"concilia/internal/reconcile"
	"concilia/internal/reconcile/handler"
	reconcilemetrics "concilia/internal/reconcile/metrics"
	recordstore "concilia/internal/reconcile/store"
	"concilia/internal/sla"
	slametrics "concilia/internal/sla/metrics"
	slastore "concilia/internal/sla/store"
	"concilia/internal/sla/stream"
	"concilia/internal/validation"
	"concilia/pkg/platform/audit/publishers/compliance"
	auditmemory "concilia/pkg/platform/audit/store/memory"
	"concilia/pkg/platform/httputil"
	"concilia/pkg/platform/middleware/requesttime"
)

const (
	jwtIssuer   = "concilia"
	jwtAudience = "concilia-reviewers"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	engineCfg, err := config.LoadEngine(cfg.EngineConfig)
	if err != nil {
		return err
	}

	records, closeRecords, err := buildRecordStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRecords()

	statuses, closeStatuses, err := buildStatusStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStatuses()

	slaMetrics := slametrics.New()
	publisher, closePublisher, err := buildPublisher(ctx, cfg, log, slaMetrics)
	if err != nil {
		return err
	}
	defer closePublisher()

	calendar, err := engineCfg.Calendar()
	if err != nil {
		return err
	}
	enforcer, err := sla.NewEnforcer(engineCfg.SLA, sla.WithCalendar(calendar), sla.WithLogger(log))
	if err != nil {
		return err
	}
	resolver, err := identity.New(engineCfg.IdentityConfig())
	if err != nil {
		return err
	}
	classifier, err := classify.New(engineCfg.Classifier)
	if err != nil {
		return err
	}
	orchestrator := reconcile.NewOrchestrator(
		matching.New(engineCfg.Matching()),
		resolver,
		classifier,
		enforcer,
		validation.New(engineCfg.Validation),
		engineCfg.PrecedenceOrder(),
	)

	auditor := compliance.New(auditmemory.NewInMemoryStore(),
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	defer auditor.Close()

	service, err := reconcile.NewService(orchestrator, records, statuses, publisher,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(reconcilemetrics.New()),
		reconcile.WithAuditPublisher(auditor),
	)
	if err != nil {
		return err
	}
	pool := reconcile.NewPool(service, cfg.Workers, log)

	sweeper := sla.NewSweeper(enforcer, statuses, publisher,
		sla.WithSweeperLogger(log),
		sla.WithSweeperMetrics(slaMetrics),
	)
	if err := sweeper.Start(ctx, cfg.SweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience)
	httpMetrics := metrics.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	handler.New(service, pool, log).Register(r, middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting concilia", "addr", cfg.Addr, "workers", cfg.Workers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func buildRecordStore(ctx context.Context, cfg config.Server, log *slog.Logger) (reconcile.RecordStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, record history is kept in memory")
		return recordstore.NewInMemoryStore(), func() {}, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store := recordstore.NewPostgres(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

func buildStatusStore(ctx context.Context, cfg config.Server, log *slog.Logger) (sla.Store, func(), error) {
	client, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, sla statuses are kept in memory")
		return slastore.NewInMemoryStore(), func() {}, nil
	}
	return slastore.NewRedisStore(client.Client), func() { _ = client.Close() }, nil
}

func buildPublisher(ctx context.Context, cfg config.Server, log *slog.Logger, m *slametrics.Metrics) (sla.Publisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, sla status events are kept in memory")
		return stream.NewMemoryPublisher(), func() {}, nil
	}
	p, err := stream.NewKafkaPublisher(cfg.KafkaBrokers,
		stream.WithTopic(cfg.SLATopic),
		stream.WithLogger(log),
		stream.WithMetrics(m),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := p.EnsureTopic(ctx, 3, 1); err != nil {
		p.Close()
		return nil, nil, err
	}
	return p, p.Close, nil
}
