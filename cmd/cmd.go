package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AlexDid/simple-debts-api/internal/config"
	"github.com/AlexDid/simple-debts-api/internal/db"
	"github.com/AlexDid/simple-debts-api/internal/handlers"
	"github.com/AlexDid/simple-debts-api/internal/middleware"
	"github.com/AlexDid/simple-debts-api/internal/repository"
	"github.com/AlexDid/simple-debts-api/internal/services"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	pool, err := db.Connect(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Database connection established")

	if cfg.Database.MigrationsDir != "" {
		if err := db.ApplyMigrations(context.Background(), pool, cfg.Database.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	debtRepo := repository.NewDebtRepository(pool)
	operationRepo := repository.NewOperationRepository(pool)

	// Initialize services
	debtService := services.NewDebtService(debtRepo, operationRepo, userRepo)
	operationService := services.NewOperationService(operationRepo, debtRepo)
	userService := services.NewUserService(userRepo, debtRepo, debtService, cfg.JWT.Secret)
	avatarService, err := services.NewAvatarService(
		cfg.AWS.Region,
		cfg.AWS.S3Bucket,
		cfg.AWS.AccessKey,
		cfg.AWS.SecretKey,
		cfg.AWS.Endpoint,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create avatar service")
	}

	var notifier *services.PushNotifier
	if cfg.APNS.KeyPath != "" {
		notifier, err = services.NewPushNotifier(
			cfg.APNS.KeyPath,
			cfg.APNS.KeyID,
			cfg.APNS.TeamID,
			cfg.APNS.Topic,
			cfg.APNS.Production,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
	}

	hub := services.NewEventsHub()

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, avatarService)
	debtHandler := handlers.NewDebtHandler(debtService, userService, hub, notifier)
	operationHandler := handlers.NewOperationHandler(operationService, debtService, userService, hub, notifier)
	wsHandler := handlers.NewWebSocketHandler(hub, userService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Get("/users", userHandler.SearchUsers)
			r.Patch("/users", userHandler.UpdateUser)
			r.Delete("/users", userHandler.DeleteUser)
			r.Post("/users/push_tokens", userHandler.AddPushToken)
			r.Post("/users/avatar/upload", userHandler.GetAvatarUploadURL)

			r.Post("/debts", debtHandler.CreateDebt)
			r.Get("/debts", debtHandler.ListDebts)
			r.Get("/debts/{debt_id}", debtHandler.GetDebt)
			r.Delete("/debts/{debt_id}", debtHandler.DeleteDebt)
			r.Post("/debts/{debt_id}/creation/accept", debtHandler.AcceptDebt)
			r.Post("/debts/{debt_id}/creation/decline", debtHandler.DeclineDebt)

			r.Post("/operations", operationHandler.CreateOperation)
			r.Delete("/operations/{operation_id}", operationHandler.DeleteOperation)
			r.Post("/operations/{operation_id}/creation/accept", operationHandler.AcceptOperation)
			r.Post("/operations/{operation_id}/creation/decline", operationHandler.DeclineOperation)
			r.Post("/operations/{operation_id}/deletion/accept", operationHandler.AcceptOperationDeletion)
			r.Post("/operations/{operation_id}/deletion/decline", operationHandler.DeclineOperationDeletion)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
