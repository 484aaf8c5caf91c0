package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	redisclient "github.com/caspianpress/stylebridge-backend/internal/clients/redis"
	"github.com/caspianpress/stylebridge-backend/internal/config"
	"github.com/caspianpress/stylebridge-backend/internal/db"
	"github.com/caspianpress/stylebridge-backend/internal/handlers"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/observability"
	"github.com/caspianpress/stylebridge-backend/internal/platform/qdrant"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/server"
	"github.com/caspianpress/stylebridge-backend/internal/services"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if logMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "stylebridge-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})

	// Policy
	policy, err := config.LoadPolicy(log)
	if err != nil {
		log.Fatal("Policy load failed", "error", err)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Vector index
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Qdrant config invalid", "error", err)
	}
	vectorStore, err := qdrant.NewVectorStore(log, qdrantCfg)
	if err != nil {
		log.Fatal("Qdrant init failed", "error", err)
	}

	// Redis embed cache (optional)
	embedCache, err := redisclient.NewEmbedCache(log)
	if err != nil {
		log.Warn("Redis embed cache unavailable, continuing without it", "error", err)
		embedCache = nil
	}

	// Repos
	log.Info("Setting up repos from main...")
	segmentRepo := repos.NewSegmentRepo(thePG, log)
	overrideRepo := repos.NewOverrideRepo(thePG, log)
	styleMemoryRepo := repos.NewStyleMemoryRepo(thePG, log)
	trainingRunRepo := repos.NewTrainingRunRepo(thePG, log)
	metricsSnapshotRepo := repos.NewMetricsSnapshotRepo(thePG, log)

	// External clients
	embedClient, err := services.NewEmbedClient(log, embedCache)
	if err != nil {
		log.Fatal("Embed client init failed", "error", err)
	}
	translatorClient, err := services.NewTranslatorClient(log)
	if err != nil {
		log.Fatal("Translator client init failed", "error", err)
	}
	trainerClient, err := services.NewTrainerClient(log)
	if err != nil {
		log.Fatal("Trainer client init failed", "error", err)
	}

	// Services
	log.Info("Setting up services from main...")
	attribution := services.NewAttributionCalculator(policy.Attribution.SumTolerance)
	retrievalService := services.NewRetrievalService(log, embedClient, vectorStore, styleMemoryRepo, policy.Retrieval)
	translationService := services.NewTranslationService(log, thePG, segmentRepo, trainingRunRepo, retrievalService, translatorClient, attribution)
	memoryInserter := services.NewMemoryInserter(log, embedClient, vectorStore, styleMemoryRepo, utils.GetEnvAsInt("MEMORY_INSERT_WORKERS", 2, log))
	defer memoryInserter.Stop()
	overrideService := services.NewOverrideService(log, thePG, segmentRepo, overrideRepo, styleMemoryRepo, attribution, memoryInserter)
	retrainService := services.NewRetrainService(
		log, thePG, trainingRunRepo, overrideRepo, trainerClient,
		policy.Retrain, policy.Promotion,
		utils.GetEnv("TRAINER_CALLBACK_URL", "", log),
	)
	metricsService := services.NewMetricsService(log, segmentRepo, trainingRunRepo, metricsSnapshotRepo)

	// Scheduler
	scheduler, err := services.NewScheduler(log, retrainService, metricsService, policy.Retrain)
	if err != nil {
		log.Fatal("Scheduler init failed", "error", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Router
	router := server.NewRouter(server.RouterConfig{
		Log:                log,
		HealthcheckHandler: handlers.NewHealthcheckHandler(log, thePG),
		TranslationHandler: handlers.NewTranslationHandler(log, translationService),
		SegmentHandler:     handlers.NewSegmentHandler(log, segmentRepo, overrideRepo, overrideService),
		StyleMemoryHandler: handlers.NewStyleMemoryHandler(log, retrievalService, styleMemoryRepo),
		RetrainHandler:     handlers.NewRetrainHandler(log, retrainService, trainingRunRepo),
		MetricsHandler:     handlers.NewMetricsHandler(log, metricsService),
	})

	addr := ":" + utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	if embedCache != nil {
		_ = embedCache.Close()
	}
	if otelShutdown != nil {
		_ = otelShutdown(shutdownCtx)
	}
}
