package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/trainseat/matrix/config"
	"github.com/trainseat/matrix/internal/catalog"
	"github.com/trainseat/matrix/internal/handler"
	"github.com/trainseat/matrix/internal/middleware"
	"github.com/trainseat/matrix/internal/model"
	"github.com/trainseat/matrix/internal/queue"
	"github.com/trainseat/matrix/internal/railapi"
	"github.com/trainseat/matrix/internal/repository"
	"github.com/trainseat/matrix/internal/service"
	"github.com/trainseat/matrix/pkg/cache"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to Redis (optional) ─────────────────────
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("✓ Redis connected")
	}

	// ── Load train catalog ──────────────────────────────
	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("failed to load train catalog: %v", err)
	}
	log.Printf("✓ Train catalog loaded (%d trains)", len(cat.Trains()))

	// ── Initialize layers ───────────────────────────────
	apiClient := railapi.NewClient(cfg.Rail.BaseURL)
	routeRepo, err := repository.NewRouteRepository(apiClient, redisClient, cfg.RouteCache.Size, cfg.RouteCache.TTL)
	if err != nil {
		log.Fatalf("failed to build route cache: %v", err)
	}
	engine := service.NewMatrixService(routeRepo, apiClient)

	sched := queue.NewScheduler(queue.Config{
		MaxConcurrent:         cfg.Queue.MaxConcurrent,
		CooldownPeriod:        cfg.Queue.CooldownPeriod,
		HeartbeatTimeout:      cfg.Queue.HeartbeatTimeout,
		CleanupInterval:       cfg.Queue.CleanupInterval,
		BatchCleanupThreshold: cfg.Queue.BatchCleanupThreshold,
	})
	if cfg.Queue.Enabled {
		sched.Start()
		defer sched.Stop()
	} else {
		log.Println("[queue] disabled, submissions compute synchronously")
	}

	defaultAuth := model.AuthCredentials{Token: cfg.Rail.AuthToken, DeviceKey: cfg.Rail.DeviceKey}
	matrixHandler := handler.NewMatrixHandler(sched, engine, defaultAuth, cfg.Queue.Enabled)
	queueHandler := handler.NewQueueHandler(sched)
	catalogHandler := handler.NewCatalogHandler(cat)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/healthz", healthHandler(redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	// Submission and polling
	api.HandleFunc("/submit", matrixHandler.Submit).Methods(http.MethodPost)
	api.HandleFunc("/status/{id}", matrixHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/result/{id}", matrixHandler.GetResult).Methods(http.MethodGet)
	// Scheduler lifecycle
	api.HandleFunc("/cancel/{id}", queueHandler.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/cancel_beacon/{id}", queueHandler.CancelBeacon).Methods(http.MethodPost)
	api.HandleFunc("/heartbeat/{id}", queueHandler.Heartbeat).Methods(http.MethodPost)
	api.HandleFunc("/stats", queueHandler.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", queueHandler.ForceCleanup).Methods(http.MethodPost)
	// Catalog
	api.HandleFunc("/trains", catalogHandler.ListTrains).Methods(http.MethodGet)

	// Middleware chain: logging outermost, then panic recovery, CORS,
	// and the cache-defeating headers every response must carry.
	chain := middleware.RequestLogger(middleware.Recoverer(middleware.CORS(middleware.NoStore(router))))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /healthz endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler reporting process and Redis
// health. redisClient may be nil when the second-level cache is off.
func healthHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if redisClient == nil {
			resp.Services["redis"] = "disabled"
		} else if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
