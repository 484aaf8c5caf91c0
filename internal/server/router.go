package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/caspianpress/stylebridge-backend/internal/handlers"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/middleware"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

type RouterConfig struct {
	Log                *logger.Logger
	HealthcheckHandler *handlers.HealthcheckHandler
	TranslationHandler *handlers.TranslationHandler
	SegmentHandler     *handlers.SegmentHandler
	StyleMemoryHandler *handlers.StyleMemoryHandler
	RetrainHandler     *handlers.RetrainHandler
	MetricsHandler     *handlers.MetricsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(otelgin.Middleware("stylebridge-backend"))

	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5174", cfg.Log), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthcheckHandler.Healthcheck)

	api := router.Group("/api")
	{
		// Translation
		api.POST("/translate", cfg.TranslationHandler.Translate)

		// Segments
		api.GET("/segments/:id", cfg.SegmentHandler.Get)
		api.POST("/segments/:id/override", cfg.SegmentHandler.Override)
		api.GET("/segments/:id/overrides", cfg.SegmentHandler.History)
		api.GET("/books/:id/segments", cfg.SegmentHandler.ListByBook)

		// Style memory
		api.GET("/style-memory/nearest", cfg.StyleMemoryHandler.Nearest)
		api.GET("/style-memory/count", cfg.StyleMemoryHandler.Count)
		api.GET("/style-memory/:id", cfg.StyleMemoryHandler.Get)

		// Retraining
		api.GET("/retrain/status", cfg.RetrainHandler.Status)
		api.POST("/retrain/trigger", cfg.RetrainHandler.Trigger)
		api.GET("/training-runs", cfg.RetrainHandler.ListRuns)
		api.POST("/training-runs/:id/result", cfg.RetrainHandler.ReportResult)
		api.POST("/training-runs/:id/promote", cfg.RetrainHandler.Promote)

		// Metrics
		api.GET("/metrics", cfg.MetricsHandler.Latest)
		api.POST("/metrics/rollup", cfg.MetricsHandler.Rollup)
	}

	return router
}
