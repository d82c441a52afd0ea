package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stridehq/stride/internal/config"
	"github.com/stridehq/stride/internal/database"
	"github.com/stridehq/stride/internal/handlers"
	"github.com/stridehq/stride/internal/logging"
	"github.com/stridehq/stride/internal/middleware"
	"github.com/stridehq/stride/internal/services"
	"github.com/stridehq/stride/internal/services/ai"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// Initialize logger
	logger := logging.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
		logger.Debug("Debug logging enabled", map[string]interface{}{
			"env": cfg.Server.Environment,
		})
	}

	logger.Info("Starting Stride server...")

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), "migrations")
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Initialize services
	dbAdapter := services.NewPoolAdapter(db.Pool)
	redisAdapter := services.NewRedisAdapter(redisDB.Client)

	var generator ai.Generator
	switch {
	case cfg.AI.Stub:
		logger.Info("Using stubbed plan generator")
		generator = &ai.StubGenerator{}
	case cfg.AI.GeminiAPIKey != "":
		generator = ai.NewGeminiGenerator(cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel, cfg.AI.GeminiTemperature, cfg.AI.GeminiMaxOutputTokens)
	default:
		logger.Warn("No Gemini API key configured; plan generation disabled")
	}

	userService := services.NewUserService(dbAdapter)
	planService := services.NewPlanService(dbAdapter, generator, cfg.Engine.FlexDaysPerMonth)

	// Downstream consumers re-read state; the sync marker only has to tell
	// them something changed.
	syncQueue := services.NewSyncQueue(256, func(ctx context.Context, event services.SyncEvent) error {
		key := fmt.Sprintf("sync:last:%s", event.Email)
		return redisAdapter.Set(ctx, key, event.OccurredAt.UTC().Format(time.RFC3339Nano), 24*time.Hour)
	})
	syncCtx, syncCancel := context.WithCancel(context.Background())
	syncQueue.Start(syncCtx)

	progressService := services.NewProgressService(dbAdapter, syncQueue)
	emailService := services.NewEmailService(&cfg.Email)
	smsService := services.NewSMSService(&cfg.SMS)
	notificationService := services.NewNotificationService(dbAdapter, redisAdapter, emailService, smsService, cfg.Email.BaseURL, cfg.Engine.ReminderBatchSize)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisDB)
	userHandler := handlers.NewUserHandler(userService)
	planHandler := handlers.NewPlanHandler(planService)
	progressHandler := handlers.NewProgressHandler(progressService)
	progressImageHandler := handlers.NewProgressImageHandler(planService)
	calendarHandler := handlers.NewCalendarHandler(cfg.Engine.FlexDaysPerMonth)

	// Reminder runner
	reminderCtx, reminderCancel := context.WithCancel(context.Background())
	go func() {
		interval := resolveReminderPollInterval(logger, os.LookupEnv)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-reminderCtx.Done():
				return
			case <-ticker.C:
				if sent, err := notificationService.RunDue(context.Background()); err != nil {
					logger.Warn("Reminder runner failed", map[string]interface{}{"error": err.Error()})
				} else if sent > 0 {
					logger.Info("Reminders sent", map[string]interface{}{"count": sent})
				}
			}
		}
	}()

	// Initialize middleware
	requireUser := handlers.RequireUser(userService)
	requestLogger := middleware.NewRequestLogger(logger)

	generateRateLimiter := middleware.NewRateLimiter(redisDB.Client, 10, 1*time.Hour, "ratelimit:generate:", func(r *http.Request) string {
		return r.Header.Get("X-Auth-Email")
	}, false)

	// Set up router
	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /live", healthHandler.Live)

	// Account endpoints
	mux.HandleFunc("POST /api/users", userHandler.Signup)
	mux.Handle("GET /api/me", requireUser(http.HandlerFunc(userHandler.Me)))
	mux.Handle("PUT /api/me/settings", requireUser(http.HandlerFunc(userHandler.UpdateSettings)))
	mux.Handle("DELETE /api/me", requireUser(http.HandlerFunc(userHandler.Delete)))

	// Plan endpoints
	mux.Handle("POST /api/plans", requireUser(http.HandlerFunc(planHandler.Create)))
	mux.Handle("POST /api/plans/generate", requireUser(generateRateLimiter.Middleware(http.HandlerFunc(planHandler.Generate))))
	mux.Handle("GET /api/plans/{id}", requireUser(http.HandlerFunc(planHandler.Get)))
	mux.Handle("PUT /api/plans/{id}/activate", requireUser(http.HandlerFunc(planHandler.SwitchActive)))
	mux.Handle("DELETE /api/plans/{id}", requireUser(http.HandlerFunc(planHandler.Delete)))
	mux.Handle("GET /api/plans/{id}/image", requireUser(http.HandlerFunc(progressImageHandler.Render)))

	// Progress endpoints
	mux.Handle("POST /api/checkin", requireUser(http.HandlerFunc(progressHandler.CheckIn)))
	mux.Handle("POST /api/plans/{id}/tasks/{taskId}/complete", requireUser(http.HandlerFunc(progressHandler.CompleteTask)))
	mux.Handle("POST /api/plans/{id}/quiz", requireUser(http.HandlerFunc(progressHandler.RecordQuizAttempt)))
	mux.Handle("POST /api/plans/{id}/problems", requireUser(http.HandlerFunc(progressHandler.RecordProblemSubmission)))

	// Calendar endpoint (no auth, pure computation)
	mux.HandleFunc("GET /api/calendar/{year}", calendarHandler.Year)

	var handler http.Handler = mux
	handler = requestLogger.Apply(handler)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Plan generation calls can legitimately take >15s; keep a higher
		// write timeout so the client gets a JSON error instead of a
		// dropped connection.
		WriteTimeout: 95 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")
		reminderCancel()
		syncCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

func resolveReminderPollInterval(logger *logging.Logger, lookupEnv func(string) (string, bool)) time.Duration {
	interval := time.Minute
	if value, ok := lookupEnv("REMINDER_POLL_INTERVAL"); ok && value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			logger.Warn("Invalid REMINDER_POLL_INTERVAL; using default", map[string]interface{}{
				"value":   value,
				"default": interval.String(),
			})
		} else {
			interval = parsed
			logger.Info("Using reminder poll interval from env", map[string]interface{}{"interval": interval.String()})
		}
	}
	return interval
}
