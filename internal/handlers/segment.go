package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/services"
)

type SegmentHandler struct {
	log       *logger.Logger
	segments  repos.SegmentRepo
	overrides repos.OverrideRepo
	override  services.OverrideService
}

func NewSegmentHandler(
	log *logger.Logger,
	segments repos.SegmentRepo,
	overrides repos.OverrideRepo,
	override services.OverrideService,
) *SegmentHandler {
	return &SegmentHandler{
		log:       log.With("handler", "SegmentHandler"),
		segments:  segments,
		overrides: overrides,
		override:  override,
	}
}

type overrideRequest struct {
	NewTranslation     string   `json:"new_translation" binding:"required"`
	Engine             string   `json:"engine"`
	Reason             string   `json:"reason"`
	UserID             string   `json:"user_id"`
	OverridePercentage *float64 `json:"override_percentage"`
	Approved           *bool    `json:"approved"`
}

// Override applies an editor correction to a segment. Approved corrections
// feed style memory; approval defaults to true since editors correct to
// publisher style.
func (h *SegmentHandler) Override(c *gin.Context) {
	segmentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "new_translation is required")
		return
	}

	svcReq := services.OverrideRequest{
		SegmentID:          segmentID,
		NewTranslation:     req.NewTranslation,
		Engine:             req.Engine,
		Reason:             req.Reason,
		OverridePercentage: req.OverridePercentage,
		Approved:           true,
	}
	if req.Approved != nil {
		svcReq.Approved = *req.Approved
	}
	if req.UserID != "" {
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid user_id")
			return
		}
		svcReq.UserID = &userID
	}

	result, err := h.override.OverrideSegment(c.Request.Context(), svcReq)
	if err != nil {
		if errors.Is(err, services.ErrSegmentNotFound) {
			respondError(c, http.StatusNotFound, "segment not found")
			return
		}
		h.log.Error("override failed", "segment_id", segmentID, "error", err)
		respondError(c, http.StatusInternalServerError, "override failed")
		return
	}
	respondJSON(c, http.StatusOK, result)
}

func (h *SegmentHandler) Get(c *gin.Context) {
	segmentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	seg, err := h.segments.GetByID(c.Request.Context(), nil, segmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "segment not found")
			return
		}
		h.log.Error("segment lookup failed", "segment_id", segmentID, "error", err)
		respondError(c, http.StatusInternalServerError, "segment lookup failed")
		return
	}
	if seg == nil {
		respondError(c, http.StatusNotFound, "segment not found")
		return
	}
	respondJSON(c, http.StatusOK, seg)
}

func (h *SegmentHandler) ListByBook(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	segments, total, err := h.segments.ListByBook(c.Request.Context(), nil, bookID, offset, limit)
	if err != nil {
		h.log.Error("segment list failed", "book_id", bookID, "error", err)
		respondError(c, http.StatusInternalServerError, "segment list failed")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"segments": segments,
		"total":    total,
		"offset":   offset,
		"limit":    limit,
	})
}

// History returns the append-only override ledger for a segment, oldest
// first.
func (h *SegmentHandler) History(c *gin.Context) {
	segmentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rows, err := h.overrides.ListBySegment(c.Request.Context(), nil, segmentID)
	if err != nil {
		h.log.Error("override history failed", "segment_id", segmentID, "error", err)
		respondError(c, http.StatusInternalServerError, "override history failed")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"overrides": rows})
}
