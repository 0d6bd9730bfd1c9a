package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	flhttp "github.com/kyashrathore/formlink-sub001/internal/adapter/http"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/litellm"
	flnats "github.com/kyashrathore/formlink-sub001/internal/adapter/nats"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/natskv"
	flotel "github.com/kyashrathore/formlink-sub001/internal/adapter/otel"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/postgres"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/ristretto"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/tiered"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/ws"
	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/logger"
	"github.com/kyashrathore/formlink-sub001/internal/middleware"
	"github.com/kyashrathore/formlink-sub001/internal/resilience"
	"github.com/kyashrathore/formlink-sub001/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"completion_parallel", cfg.Agent.CompletionParallel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOtel, err := flotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := flotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := flnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("snapshot bucket: %w", err)
	}
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()
	snapshotCache := tiered.New(l1, natskv.New(kv), 10*time.Minute)

	// --- Completion ---

	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llm.SetPool(resilience.NewPool(cfg.Agent.CompletionParallel))
	llm.SetCallTimeout(cfg.LiteLLM.Timeout)

	// --- Services ---

	store := postgres.NewStore(pool)
	events := postgres.NewEventStore(pool)
	hub := ws.NewHub()
	snapshots := service.NewSnapshotService(snapshotCache, events, cfg.Cache.L2TTL)

	orch := service.NewOrchestrator(llm, store, cfg.Agent, metrics)
	generation := service.NewGenerationService(orch, events, metrics,
		service.PersistEvents(events),
		snapshots,
		flnats.NewEventSink(queue, cfg.NATS.SubjectPrefix),
		hub,
	)

	// --- HTTP ---

	handlers := &flhttp.Handlers{
		Generator: generation,
		Snapshots: snapshots,
		Forms:     store,
		LLM:       llm,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(flhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(flhttp.SecurityHeaders)
	r.Use(flhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(flotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	flhttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: generate streams last as long as the run.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server", "ws_connections", hub.ConnectionCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
