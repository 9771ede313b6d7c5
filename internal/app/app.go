// Package app wires the admission pipeline, worker pipeline, and content
// surface into a runnable process. Grounded on the teacher's app.Run:
// config -> infra connections -> migrations -> mode dispatch, kept as one
// top-level function with small per-mode helpers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/admissiond/internal/admission"
	"github.com/wisbric/admissiond/internal/config"
	"github.com/wisbric/admissiond/internal/content"
	"github.com/wisbric/admissiond/internal/generator"
	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/limiter"
	"github.com/wisbric/admissiond/internal/notify"
	"github.com/wisbric/admissiond/internal/platform"
	"github.com/wisbric/admissiond/internal/principal"
	"github.com/wisbric/admissiond/internal/queue"
	"github.com/wisbric/admissiond/internal/store"
	"github.com/wisbric/admissiond/internal/telemetry"
	"github.com/wisbric/admissiond/internal/worker"
)

// Run is the main application entry point: given an already-loaded cfg, it
// connects to infrastructure and starts the mode (api or worker) cfg selected.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting admissiond", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	tp, err := telemetry.NewTracerProvider(ctx, cfg.OTLPEndpoint, cfg.OTELDebug)
	if err != nil {
		return fmt.Errorf("initializing tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down tracer provider", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// buildGenerators wires the two provider SDKs named in the domain stack
// behind a circuit breaker apiece, reporting trips through notifier when
// Slack is configured.
func buildGenerators(ctx context.Context, cfg *config.Config, notifier *notify.Notifier) (*generator.Registry, error) {
	onOpen := func(provider string) {
		notifier.NotifyCircuitOpen(context.Background(), provider)
	}

	anthropicGen := generator.NewCircuitBreakerGenerator(
		generator.NewAnthropicGenerator(cfg.AnthropicAPIKey), string(generator.ProviderAnthropic), onOpen)

	bedrockInner, err := generator.NewBedrockGenerator(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("initializing bedrock generator: %w", err)
	}
	bedrockGen := generator.NewCircuitBreakerGenerator(bedrockInner, string(generator.ProviderBedrock), onOpen)

	return generator.NewRegistry(map[generator.Provider]generator.Generator{
		generator.ProviderAnthropic: anthropicGen,
		generator.ProviderBedrock:   bedrockGen,
	}), nil
}

// buildWorkerPipeline assembles the pipeline the worker HTTP handler
// invokes, shared by both runAPI's local dispatcher and runWorker's remote
// ingress so the two modes never diverge in how a job is processed.
func buildWorkerPipeline(
	facade *limiter.Facade,
	db *pgxpool.Pool,
	generators *generator.Registry,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *worker.Pipeline {
	return worker.NewPipeline(
		facade,
		store.NewSubscriptionStore(db),
		store.NewBoostStore(db),
		store.NewGenerationStore(db),
		store.NewVariantStore(db),
		store.NewUsageLedgerStore(db),
		generators,
		logger,
		notifier,
	)
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	facade := limiter.NewFacade(rdb)
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack ops notifier enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack ops notifier disabled (SLACK_BOT_TOKEN/SLACK_ALERT_CHANNEL not set)")
	}

	generators, err := buildGenerators(ctx, cfg, notifier)
	if err != nil {
		return err
	}

	pipeline := buildWorkerPipeline(facade, db, generators, notifier, logger)
	workerHandler := worker.NewHandler(pipeline, cfg.QStashCurrentSignKey, cfg.QStashNextSignKey, cfg.IsLocalDev())

	var dispatcher queue.Dispatcher
	switch cfg.QueueMode {
	case "local":
		dispatcher = queue.NewLocalDispatcher(workerHandler.Routes(), "/generate")
		logger.Info("queue dispatch: local (in-process)")
	case "remote":
		dispatcher = queue.NewRemoteDispatcher(http.DefaultClient, cfg.QStashURL, cfg.QStashToken,
			cfg.QStashCurrentSignKey, cfg.AppURL, "/api/worker/generate")
		logger.Info("queue dispatch: remote (QStash)", "appUrl", cfg.AppURL)
	default:
		return fmt.Errorf("unknown queue mode: %s", cfg.QueueMode)
	}

	drafts := store.NewDraftStore(db)
	generations := store.NewGenerationStore(db)
	variants := store.NewVariantStore(db)
	assets := store.NewAssetStore(db)

	admissionSvc := admission.NewService(
		facade,
		store.NewSubscriptionStore(db),
		store.NewBoostStore(db),
		drafts,
		generations,
		admission.NewTxPersister(db),
		dispatcher,
		generators,
		logger,
		cfg.ProviderMaxLeases,
	)
	admissionHandler := admission.NewHandler(admissionSvc)

	draftHandler := content.NewDraftHandler(drafts)
	generationHandler := content.NewGenerationHandler(generations, variants)
	assetHandler := content.NewAssetHandler(assets)

	queueHealth := queue.NewHealthChecker(generations)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, queueHealth, principal.Middleware(cfg.AuthSecret))
	srv.APIRouter.Mount("/", admissionHandler.Routes())
	srv.APIRouter.Mount("/drafts", draftHandler.Routes())
	srv.APIRouter.Mount("/generations", generationHandler.Routes())
	srv.APIRouter.Mount("/library/assets", assetHandler.Routes())

	return serve(ctx, logger, srv, cfg.ListenAddr(), "api")
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	facade := limiter.NewFacade(rdb)
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	generators, err := buildGenerators(ctx, cfg, notifier)
	if err != nil {
		return err
	}

	pipeline := buildWorkerPipeline(facade, db, generators, notifier, logger)
	workerHandler := worker.NewHandler(pipeline, cfg.QStashCurrentSignKey, cfg.QStashNextSignKey, cfg.IsLocalDev())

	generations := store.NewGenerationStore(db)
	queueHealth := queue.NewHealthChecker(generations)

	// The worker process authenticates inbound pushes via the signed
	// envelope (verified inside worker.Handler), not a principal token, so
	// its principal middleware is a pass-through.
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, queueHealth, func(next http.Handler) http.Handler { return next })
	srv.Router.Mount("/api/worker", workerHandler.Routes())

	return serve(ctx, logger, srv, cfg.ListenAddr(), "worker")
}

func serve(ctx context.Context, logger *slog.Logger, handler http.Handler, addr, mode string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(mode+" server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down " + mode + " server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
