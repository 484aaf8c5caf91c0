package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
)

type HealthcheckHandler struct {
	log *logger.Logger
	db  *gorm.DB
}

func NewHealthcheckHandler(log *logger.Logger, db *gorm.DB) *HealthcheckHandler {
	return &HealthcheckHandler{
		log: log.With("handler", "HealthcheckHandler"),
		db:  db,
	}
}

func (h *HealthcheckHandler) Healthcheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.log.Error("healthcheck db ping failed", "error", err)
		respondJSON(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
