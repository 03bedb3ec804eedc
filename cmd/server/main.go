// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/database"
	"github.com/javajoker/dealer-contracts/internal/i18n"
	"github.com/javajoker/dealer-contracts/internal/observability"
	"github.com/javajoker/dealer-contracts/internal/repository"
	"github.com/javajoker/dealer-contracts/internal/router"
	"github.com/javajoker/dealer-contracts/internal/services"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}
	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitOTel(ctx, observability.OtelConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Telemetry.Version,
	})

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.Fatal("Failed to run migrations: ", err)
	}

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.Fatal("Failed to initialize i18n: ", err)
	}

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	utils.SetJWTIssuer(cfg.JWT.Issuer)

	// Collaborators
	storageService, err := services.NewStorageService(ctx, cfg)
	if err != nil {
		logrus.Fatal("Failed to initialize document store: ", err)
	}

	notificationService := services.NewNotificationService(cfg)
	dispatcher, err := services.NewDispatcher(db, notificationService, cfg)
	if err != nil {
		logrus.Fatal("Failed to initialize notification dispatcher: ", err)
	}
	dispatcher.Start(ctx)

	engine, closeEngine, err := buildExtractionEngine(ctx, cfg, storageService)
	if err != nil {
		logrus.Fatal("Failed to initialize extraction engine: ", err)
	}
	defer closeEngine()

	// Domain services
	repo := repository.NewContractRepository(db, cfg.Signing.MutateRetries)
	completionService := services.NewCompletionService(repo, storageService, services.NewPDFAssembler(), dispatcher, cfg.Signing.DealershipName)
	signatureService := services.NewSignatureService(repo, storageService, dispatcher, completionService, cfg.Signing)
	digitizationService := services.NewDigitizationService(repo, engine, cfg.Extraction.WebhookSeed)

	signatureService.StartSweeper(ctx, time.Duration(cfg.Signing.SweepIntervalSeconds)*time.Second)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := router.Initialize(db, cfg, router.Services{
		Contracts:    services.NewContractService(repo),
		Signatures:   signatureService,
		Completion:   completionService,
		Digitization: digitizationService,
		Storage:      storageService,
		Identity:     services.NewJWTDirectory(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	dispatcher.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Failed to flush traces")
	}

	logrus.Info("Server exited")
}

func configureLogging(cfg *config.Config) {
	logrus.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func buildExtractionEngine(ctx context.Context, cfg *config.Config, store services.DocumentStore) (services.ExtractionEngine, func(), error) {
	switch cfg.Extraction.Engine {
	case services.EngineDocumentAI:
		engine, err := services.NewDocumentAIEngine(ctx, cfg, store)
		if err != nil {
			return nil, nil, err
		}
		return engine, func() {
			if err := engine.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close Document AI client")
			}
		}, nil
	case services.EngineWebhook:
		return services.NewWebhookEngine(cfg.Extraction), func() {}, nil
	default:
		return services.ManualEngine{}, func() {}, nil
	}
}
