package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/formwatch/formwatch/internal/checklist"
	"github.com/formwatch/formwatch/internal/fetch"
	"github.com/formwatch/formwatch/internal/handler"
	"github.com/formwatch/formwatch/internal/infrastructure/logger"
	"github.com/formwatch/formwatch/internal/infrastructure/redis"
	"github.com/formwatch/formwatch/internal/notify"
	"github.com/formwatch/formwatch/internal/observability/metrics"
	"github.com/formwatch/formwatch/internal/observability/tracing"
	"github.com/formwatch/formwatch/internal/registry"
	"github.com/formwatch/formwatch/internal/repository"
	"github.com/formwatch/formwatch/internal/security"
	"github.com/formwatch/formwatch/internal/security/audit"
	"github.com/formwatch/formwatch/internal/security/auth"
	"github.com/formwatch/formwatch/internal/security/middleware"
	"github.com/formwatch/formwatch/internal/security/ratelimit"
	"github.com/formwatch/formwatch/internal/service"
	"github.com/formwatch/formwatch/internal/storage"
	"github.com/formwatch/formwatch/internal/worker"
	"github.com/formwatch/formwatch/pkg/config"
	"github.com/formwatch/formwatch/pkg/database"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting formwatch server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "formwatch", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := database.NewConnectionPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// Redis is optional; without it sweeps rely on in-process guards only
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// Source registry: file when configured, builtin defaults otherwise
	var sources *registry.Registry
	if cfg.SourceRegistryPath != "" {
		sources, err = registry.Load(cfg.SourceRegistryPath)
		if err != nil {
			log.Error("failed to load source registry",
				slog.String("path", cfg.SourceRegistryPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	} else {
		sources = registry.Default()
	}

	// Repositories
	documentRepo := repository.NewPostgresDocumentRepository(db.GetDB(), log)
	checklistRepo := repository.NewPostgresChecklistRepository(db.GetDB(), log)
	companyRepo := repository.NewPostgresCompanyRepository(db.GetDB(), log)
	employeeRepo := repository.NewPostgresEmployeeRepository(db.GetDB(), log)
	webhookRepo := repository.NewPostgresWebhookRepository(db.GetDB(), log)
	clientRepo := repository.NewPostgresClientRepository(db.GetDB(), log)

	// Fetch pipeline: API, scrapers, archive fallback backed by the store
	apiClient := fetch.NewAPIClient(cfg.FetchTimeout, log)
	scrapers := fetch.NewScraperRegistry(cfg.FetchTimeout, log)
	pipeline := fetch.NewPipeline(sources, apiClient, scrapers, documentRepo, cfg.FetchRatePerSec, log)

	// Blob storage for checklist evidence uploads
	blobs, err := storage.NewBlobStore(ctx, storage.BlobStoreConfig{
		Bucket:    cfg.BlobBucket,
		Region:    cfg.BlobRegion,
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: os.Getenv("BLOB_ACCESS_KEY"),
		SecretKey: os.Getenv("BLOB_SECRET_KEY"),
		SignedTTL: time.Duration(cfg.SignedURLTTLMinutes) * time.Minute,
	}, log)
	if err != nil {
		log.Error("failed to initialize blob storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Notification fan-out: websocket admin feed, log-backed user channel,
	// and signed webhook delivery
	hub := notify.NewHub(cfg.CORSAllowedOrigins, log)
	logChannel := notify.NewLogChannel(log)
	dispatcher := notify.NewDispatcher(webhookRepo, cfg.WebhookWorkers, cfg.WebhookTimeout, cfg.WebhookMaxAttempts, log, hub, logChannel)
	defer dispatcher.Close()

	// Services
	documentService := service.NewDocumentService(pipeline, documentRepo, sources, log)
	builder := checklist.NewBuilder(sources)
	onboardingService := service.NewOnboardingService(builder, companyRepo, employeeRepo, checklistRepo, dispatcher, log)
	complianceService := service.NewComplianceService(builder, companyRepo, employeeRepo, checklistRepo)

	// Scheduled sweeps; Redis (when present) guards against duplicate
	// sweeps across instances
	var guard worker.GuardLock
	if redisClient != nil {
		guard = redisClient
	}
	sweepWorker := worker.NewSweepWorker(documentRepo, documentService, dispatcher, sources, guard, cfg.SweepConcurrency, cfg.SweepIntervals, log)
	go sweepWorker.Start(ctx)

	retentionWorker := worker.NewRetentionWorker(documentRepo, cfg.ContentRetention, cfg.RetentionInterval, log)
	go retentionWorker.Start(ctx)

	// Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "formwatch")
	authService := service.NewAuthService(clientRepo, tokenManager, log)
	authorizer := security.NewAuthorizer()
	ownership := security.NewOwnershipGuard(log)
	rateLimiter := ratelimit.NewLimiter(100, time.Minute)
	auditLogger := audit.NewLogger(log)

	// Handlers
	healthHandler := handler.NewHealthHandler(db, redisClient, log)
	authHandler := handler.NewAuthHandler(authService, log)
	documentsHandler := handler.NewDocumentsHandler(documentService, documentRepo, authorizer, auditLogger, log)
	complianceHandler := handler.NewComplianceHandler(complianceService, log)
	onboardingHandler := handler.NewOnboardingHandler(onboardingService, blobs, authorizer, log)
	webhooksHandler := handler.NewWebhooksHandler(webhookRepo, authorizer, ownership, auditLogger, log)
	sweepsHandler := handler.NewSweepsHandler(sweepWorker, authorizer, auditLogger, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	mux.HandleFunc("GET /api/documents", documentsHandler.List)
	mux.HandleFunc("GET /api/documents/{formId}", documentsHandler.Get)
	mux.HandleFunc("GET /api/documents/{formId}/status", documentsHandler.Status)
	mux.HandleFunc("POST /api/documents/{formId}/refresh", documentsHandler.Refresh)

	mux.HandleFunc("GET /api/compliance/company/{id}", complianceHandler.Company)
	mux.HandleFunc("GET /api/compliance/employee/{id}", complianceHandler.Employee)

	mux.HandleFunc("POST /api/onboarding/company", onboardingHandler.OnboardCompany)
	mux.HandleFunc("POST /api/onboarding/employee", onboardingHandler.OnboardEmployee)
	mux.HandleFunc("PATCH /api/onboarding/checklist-items/{id}", onboardingHandler.UpdateItem)
	mux.HandleFunc("POST /api/checklist-items/{id}/file", onboardingHandler.UploadFile)

	mux.HandleFunc("POST /api/webhooks", webhooksHandler.Create)
	mux.HandleFunc("GET /api/webhooks", webhooksHandler.List)
	mux.HandleFunc("DELETE /api/webhooks/{id}", webhooksHandler.Delete)

	mux.HandleFunc("POST /api/sweeps/{class}", sweepsHandler.Run)

	mux.Handle("GET /ws/notifications", hub)

	// CORS honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain: request ID -> sanitize -> JWT -> rate limit -> audit -> validation -> CORS.
	// JWT runs before the rate limiter and audit so both see the
	// authenticated client; anonymous traffic is limited by source address.
	rootHandler := withRequestID(
		middleware.SanitizeInputs(log)(
			middleware.JWTMiddleware(tokenManager, log)(
				middleware.RateLimitMiddleware(rateLimiter, log)(
					middleware.AuditMiddleware(auditLogger)(
						middleware.ValidateJSONContentType(log)(handlerWithCORS),
					),
				),
			),
		),
		log,
	)
	rootHandler = metrics.HTTPMetricsMiddleware(rootHandler)
	rootHandler = otelhttp.NewHandler(rootHandler, "formwatch")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("tracked_sources", len(sources.All())),
		slog.Int("sweep_concurrency", cfg.SweepConcurrency),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop sweep tickers
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
