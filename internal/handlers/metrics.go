package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/services"
)

type MetricsHandler struct {
	log     *logger.Logger
	metrics services.MetricsService
}

func NewMetricsHandler(log *logger.Logger, metrics services.MetricsService) *MetricsHandler {
	return &MetricsHandler{
		log:     log.With("handler", "MetricsHandler"),
		metrics: metrics,
	}
}

// Latest serves the newest daily rollup; an optional date query pins a
// specific day.
func (h *MetricsHandler) Latest(c *gin.Context) {
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		snapshot, err := h.metrics.ForDate(c.Request.Context(), date)
		if err != nil {
			h.log.Error("metrics lookup failed", "date", raw, "error", err)
			respondError(c, http.StatusInternalServerError, "metrics lookup failed")
			return
		}
		if snapshot == nil {
			respondError(c, http.StatusNotFound, "no metrics for date")
			return
		}
		respondJSON(c, http.StatusOK, snapshot)
		return
	}

	snapshot, err := h.metrics.Latest(c.Request.Context())
	if err != nil {
		h.log.Error("metrics lookup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "metrics lookup failed")
		return
	}
	if snapshot == nil {
		respondError(c, http.StatusNotFound, "no metrics recorded yet")
		return
	}
	respondJSON(c, http.StatusOK, snapshot)
}

// Rollup forces an immediate aggregation instead of waiting for the nightly
// job.
func (h *MetricsHandler) Rollup(c *gin.Context) {
	snapshot, err := h.metrics.RollupToday(c.Request.Context())
	if err != nil {
		h.log.Error("manual rollup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "metrics rollup failed")
		return
	}
	respondJSON(c, http.StatusOK, snapshot)
}
