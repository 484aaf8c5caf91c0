package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/services"
)

type TranslationHandler struct {
	log         *logger.Logger
	translation services.TranslationService
}

func NewTranslationHandler(log *logger.Logger, translation services.TranslationService) *TranslationHandler {
	return &TranslationHandler{
		log:         log.With("handler", "TranslationHandler"),
		translation: translation,
	}
}

type translateRequest struct {
	SegmentID string `json:"segment_id" binding:"required"`
}

// Translate runs one segment through style retrieval and, on a miss, the
// base model.
func (h *TranslationHandler) Translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "segment_id is required")
		return
	}
	segmentID, err := uuid.Parse(req.SegmentID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid segment_id")
		return
	}

	result, err := h.translation.TranslateSegment(c.Request.Context(), segmentID)
	if err != nil {
		if errors.Is(err, services.ErrSegmentNotFound) {
			respondError(c, http.StatusNotFound, "segment not found")
			return
		}
		h.log.Error("translate segment failed", "segment_id", segmentID, "error", err)
		respondError(c, http.StatusBadGateway, "translation failed")
		return
	}
	respondJSON(c, http.StatusOK, result)
}
