package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	sghttp "github.com/opsgate/sapguard/internal/adapter/http"
	"github.com/opsgate/sapguard/internal/adapter/litellm"
	sgmcp "github.com/opsgate/sapguard/internal/adapter/mcp"
	sgnats "github.com/opsgate/sapguard/internal/adapter/nats"
	sgotel "github.com/opsgate/sapguard/internal/adapter/otel"
	"github.com/opsgate/sapguard/internal/adapter/postgres"
	"github.com/opsgate/sapguard/internal/adapter/ristretto"
	"github.com/opsgate/sapguard/internal/adapter/ws"
	"github.com/opsgate/sapguard/internal/agents"
	"github.com/opsgate/sapguard/internal/config"
	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/logger"
	"github.com/opsgate/sapguard/internal/resilience"
	"github.com/opsgate/sapguard/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_iterations", cfg.Orchestrator.MaxIterations,
		"protected_envs", cfg.Safety.ProtectedEnvs,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownTelemetry, err := sgotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()
	meter := sgotel.Meter(cfg.Logging.Service)

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

	queue, err := sgnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	cache, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Collaborators ---
	store := postgres.NewStore(pool)
	hub := ws.NewHub()

	llm := litellm.NewClient(cfg.LiteLLM)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	jobRunner := sgnats.NewJobRunner(queue, cfg.NATS.RequestTimeout, cfg.NATS.MaxInFlight)
	gate := service.NewStoreGate(store, cfg.Safety.ConfirmationTTL, log)
	selector := service.NewExecutionSelector(jobRunner, queue, cfg.Safety.ProtectedEnvs, log, meter)

	// --- Capabilities ---
	catalog := agents.NewCatalogLoader(cfg.Catalog.Dir, cache, cfg.Cache.CatalogTTL, log)
	registry := capability.NewRegistry()
	for _, c := range []capability.Capability{
		agents.NewDiagnostics(jobRunner, log),
		agents.NewPlanner(catalog, log),
		agents.NewExecutor(gate, selector, log),
	} {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("register capability: %w", err)
		}
	}

	// --- Services ---
	orchestrator := service.NewOrchestrator(service.OrchestratorOptions{
		Name:              cfg.Orchestrator.Name,
		MaxIterations:     cfg.Orchestrator.MaxIterations,
		InvocationTimeout: cfg.Orchestrator.InvocationTimeout,
		FallbackMessage:   cfg.Orchestrator.FallbackMessage,
	}, registry, llm, store, hub, log, meter)

	conversations := service.NewConversationService(store, orchestrator, log)
	plans := service.NewPlanService(gate, jobRunner, queue, cfg.Safety.ProtectedEnvs, log)

	// --- HTTP ---
	handlers := &sghttp.Handlers{
		Conversations: conversations,
		Plans:         plans,
		Registry:      registry,
		Store:         store,
		Queue:         queue,
		LLM:           llm,
	}

	mcpSrv := sgmcp.NewServer("sapguard", "0.1.0", sgmcp.ServerDeps{
		Plans:    plans,
		Registry: registry,
	})

	r := chi.NewRouter()
	r.Use(sghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sghttp.RequestID)
	r.Use(sghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	sghttp.MountRoutes(r, handlers, *cfg, hub.HandleWS)
	r.Mount("/mcp", mcpSrv.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(r, "sapguard.http"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // HA test turns can be slow
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
