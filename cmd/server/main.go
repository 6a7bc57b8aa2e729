package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/autosave"
	"github.com/ujianku/sesi-backend/internal/config"
	"github.com/ujianku/sesi-backend/internal/database"
	"github.com/ujianku/sesi-backend/internal/deadline"
	"github.com/ujianku/sesi-backend/internal/handler"
	"github.com/ujianku/sesi-backend/internal/logger"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/router"
	"github.com/ujianku/sesi-backend/internal/service"
	"github.com/ujianku/sesi-backend/internal/timer"
	"github.com/ujianku/sesi-backend/internal/validator"
	"github.com/ujianku/sesi-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Sesi Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	participantRepo := repository.NewParticipantRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	// ─── Initialize Session Engine Plumbing ────────────────────────────
	// Deadlines persist with a TTL just past the staleness window, so a
	// stale entry disappears on its own even without a cleanup pass.
	deadlineStore := deadline.NewRedisStore(rdb, cfg.DeadlineMaxAhead+time.Hour)
	resolver := deadline.NewResolver(deadlineStore, cfg.DeadlineMaxAhead)
	timers := timer.NewManager(log)
	dispatcher := autosave.NewDispatcher(rdb, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	answerService := service.NewAnswerService(sessionRepo, questionRepo, dispatcher)
	sessionService := service.NewSessionService(sessionRepo, testRepo, questionRepo, dispatcher, resolver, timers, log)
	transitionService := service.NewTransitionService(sessionRepo, testRepo, questionRepo, dispatcher, resolver, timers, rdb, log)
	sessionService.SetFinisher(transitionService)
	historyService := service.NewHistoryService(sessionRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, participantRepo),
		Session:    handler.NewSessionHandler(sessionService),
		Answer:     handler.NewAnswerHandler(answerService),
		Transition: handler.NewTransitionHandler(transitionService),
		History:    handler.NewHistoryHandler(historyService),
		WS:         handler.NewWSHandler(sessionService, answerService, transitionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	gradeWorker := worker.NewGradeWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go gradeWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop countdowns. Deadlines stay persisted, so a restart resumes
	// every running timer on the next continue load.
	timers.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
