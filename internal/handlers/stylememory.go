package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/services"
)

type StyleMemoryHandler struct {
	log       *logger.Logger
	retrieval services.RetrievalService
	memory    repos.StyleMemoryRepo
}

func NewStyleMemoryHandler(
	log *logger.Logger,
	retrieval services.RetrievalService,
	memory repos.StyleMemoryRepo,
) *StyleMemoryHandler {
	return &StyleMemoryHandler{
		log:       log.With("handler", "StyleMemoryHandler"),
		retrieval: retrieval,
		memory:    memory,
	}
}

// Nearest is the editor-assist diagnostic: ranked neighbors for a source
// text, below-threshold candidates included.
func (h *StyleMemoryHandler) Nearest(c *gin.Context) {
	sourceText := strings.TrimSpace(c.Query("source_text"))
	if sourceText == "" {
		respondError(c, http.StatusBadRequest, "source_text is required")
		return
	}
	k, _ := strconv.Atoi(c.DefaultQuery("k", "0"))

	candidates, err := h.retrieval.NearestMatches(c.Request.Context(), sourceText, k)
	if err != nil {
		if errors.Is(err, services.ErrEmbeddingUnavailable) {
			respondError(c, http.StatusServiceUnavailable, "embedding provider unavailable")
			return
		}
		h.log.Error("nearest match lookup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "nearest match lookup failed")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"candidates": candidates})
}

func (h *StyleMemoryHandler) Get(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.memory.GetByID(c.Request.Context(), nil, entryID)
	if err != nil {
		h.log.Error("style memory lookup failed", "entry_id", entryID, "error", err)
		respondError(c, http.StatusInternalServerError, "style memory lookup failed")
		return
	}
	if entry == nil {
		respondError(c, http.StatusNotFound, "style memory entry not found")
		return
	}
	respondJSON(c, http.StatusOK, entry)
}

func (h *StyleMemoryHandler) Count(c *gin.Context) {
	count, err := h.memory.CountAll(c.Request.Context(), nil)
	if err != nil {
		h.log.Error("style memory count failed", "error", err)
		respondError(c, http.StatusInternalServerError, "style memory count failed")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"count": count})
}
