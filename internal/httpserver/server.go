package httpserver

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/admissiond/internal/config"
)

// QueueHealth reports the queue dispatcher's liveness for the health
// surface (§6.1's GET /api/health, SUPPLEMENT "Health surface").
type QueueHealth interface {
	// OldestPendingAge returns the age of the oldest generation still in
	// the pending state, or 0 if there is none.
	OldestPendingAge(ctx context.Context) (time.Duration, error)
}

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // principal-resolved /v1 sub-router
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	Queue     QueueHealth
	startedAt time.Time
}

// PrincipalMiddleware resolves the inbound request into an authenticated
// principal and stores it in the request context. Out-of-core per spec
// §1 ("the core consumes an already-authenticated principal"); supplied by
// internal/principal.
type PrincipalMiddleware func(http.Handler) http.Handler

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints. Domain handlers should be mounted on APIRouter after calling
// NewServer.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, queue QueueHealth, principal PrincipalMiddleware) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		Queue:     queue,
		startedAt: time.Now(),
	}

	// Global middleware
	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health probe (unauthenticated, §6.1 GET /api/health).
	s.Router.Get("/api/health", s.handleHealth)

	// Prometheus metrics (unauthenticated)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// Authenticated admission/content API routes.
	s.Router.Route("/v1", func(r chi.Router) {
		r.Use(principal)
		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// healthResponse is the component check map returned by GET /api/health.
type healthResponse struct {
	Status   string         `json:"status"`
	Database string         `json:"database"`
	Redis    string         `json:"redis"`
	Queue    string         `json:"queue"`
	Latency  map[string]int `json:"latency_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{Status: "ok", Latency: map[string]int{}}

	dbStart := time.Now()
	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("health check: database ping failed", "error", err)
		resp.Database = "error"
		resp.Status = "degraded"
	} else {
		resp.Database = "ok"
	}
	resp.Latency["database"] = int(math.Round(float64(time.Since(dbStart).Microseconds()) / 1000))

	redisStart := time.Now()
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("health check: redis ping failed", "error", err)
		resp.Redis = "error"
		resp.Status = "degraded"
	} else {
		resp.Redis = "ok"
	}
	resp.Latency["redis"] = int(math.Round(float64(time.Since(redisStart).Microseconds()) / 1000))

	if s.Queue != nil {
		if age, err := s.Queue.OldestPendingAge(ctx); err != nil {
			s.Logger.Error("health check: queue check failed", "error", err)
			resp.Queue = "error"
			resp.Status = "degraded"
		} else if age > 5*time.Minute {
			resp.Queue = "error"
			resp.Status = "degraded"
		} else {
			resp.Queue = "ok"
		}
	} else {
		resp.Queue = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	Respond(w, status, resp)
}
