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
	_ "github.com/lib/pq"

	"github.com/rkRashik/deltacrown/config"
	"github.com/rkRashik/deltacrown/db"
	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/handlers"
	"github.com/rkRashik/deltacrown/live"
	"github.com/rkRashik/deltacrown/middleware"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
	api "github.com/rkRashik/deltacrown/routes"
	"github.com/rkRashik/deltacrown/scheduler"
	"github.com/rkRashik/deltacrown/services"
	"github.com/rkRashik/deltacrown/storage"
	"github.com/rkRashik/deltacrown/validation"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Duration("auto_confirm_window", cfg.AutoConfirmWindow),
		slog.Duration("escalation_sla", cfg.EscalationSLA))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация загрузчика файлов (Cloudflare R2)
	cloudflareUploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	// Инициализация WebSocket Hub
	wsHub := live.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	submissionRepo := repositories.NewPostgresSubmissionRepository(dbConn)
	disputeRepo := repositories.NewPostgresDisputeRepository(dbConn)
	evidenceRepo := repositories.NewPostgresEvidenceRepository(dbConn)
	logRepo := repositories.NewPostgresVerificationLogRepository(dbConn)
	jobRepo := repositories.NewPostgresJobRepository(dbConn)
	logger.Info("Repositories initialized")

	// Шина событий и трансляция в комнаты турниров
	bus := events.NewBus(logger)
	forwarder := live.NewForwarder(wsHub, matchRepo, submissionRepo, disputeRepo, logger)
	forwarder.Attach(bus)

	// Планировщик отложенных задач поверх Postgres
	jobs := scheduler.NewPostgresScheduler(jobRepo)
	runner := scheduler.NewRunner(jobRepo, logger, cfg.JobPollInterval)

	// Инициализация сервисов. Порядок важен: верификация не зависит ни от
	// кого, споры зависят от верификации, подача — от споров.
	validator := validation.NewSchemaValidator(gameRepo)
	verificationService := services.NewVerificationService(
		submissionRepo, disputeRepo, matchRepo, logRepo, validator, bus, logger)
	disputeService := services.NewDisputeService(
		disputeRepo, evidenceRepo, submissionRepo, logRepo,
		verificationService, bus, jobs, cfg.AutoConfirmWindow, cfg.EscalationSLA, logger)
	submissionService := services.NewSubmissionService(
		submissionRepo, matchRepo, disputeRepo, validator, disputeService,
		logRepo, bus, jobs, cfg.AutoConfirmWindow, logger)
	reviewService := services.NewReviewService(
		submissionRepo, disputeRepo, matchRepo, disputeService,
		verificationService, bus, logger)
	logger.Info("Services initialized")

	// Обработчик просроченных заявок: автоподтверждение и немедленная
	// финализация через пайплайн верификации.
	runner.Register(scheduler.TaskAutoConfirmSubmission, func(ctx context.Context, args models.JSONMap) error {
		submissionID, ok := args.Int("submission_id")
		if !ok {
			return fmt.Errorf("auto-confirm job args missing submission_id: %v", args)
		}

		_, outcome, err := submissionService.AutoConfirmResult(ctx, submissionID)
		if err != nil {
			if errors.Is(err, services.ErrSubmissionNotFound) {
				return nil // заявка удалена, задаче нечего делать
			}
			return err
		}
		if outcome != services.AutoConfirmApplied {
			return nil
		}

		if _, err := verificationService.FinalizeSubmissionAfterVerification(ctx, submissionID, nil); err != nil {
			// Верификация не прошла или спор успел открыться: заявка
			// остаётся в инбоксе организатора, ретрай не поможет.
			var verificationErr *services.VerificationFailedError
			if errors.As(err, &verificationErr) || errors.Is(err, services.ErrInvalidDisputeState) {
				logger.Warn("auto-confirmed submission left for manual review",
					slog.Int("submission_id", submissionID), slog.Any("error", err))
				return nil
			}
			return err
		}
		return nil
	})
	go runner.Run(context.Background())

	// Периодическая эскалация просроченных споров
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		logger.Info("dispute escalation sweep started", slog.Duration("interval", cfg.SweepInterval))

		// Первый проход сразу при старте, дальше по тикеру
		if _, err := disputeService.EscalateOverdueDisputes(context.Background()); err != nil {
			logger.Error("sweep: initial run failed", slog.Any("error", err))
		}

		for range ticker.C {
			if _, err := disputeService.EscalateOverdueDisputes(context.Background()); err != nil {
				logger.Error("sweep: periodic run failed", slog.Any("error", err))
			}
		}
	}()

	// Инициализация обработчиков HTTP
	auth := middleware.NewAuth(cfg.JWTSecretKey)
	submissionHandler := handlers.NewSubmissionHandler(submissionService, cloudflareUploader)
	disputeHandler := handlers.NewDisputeHandler(disputeService, cloudflareUploader)
	reviewHandler := handlers.NewReviewHandler(reviewService, verificationService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, auth, submissionHandler, disputeHandler, reviewHandler, webSocketHandler)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
