package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/services"
)

type RetrainHandler struct {
	log     *logger.Logger
	retrain services.RetrainService
	runs    repos.TrainingRunRepo
}

func NewRetrainHandler(
	log *logger.Logger,
	retrain services.RetrainService,
	runs repos.TrainingRunRepo,
) *RetrainHandler {
	return &RetrainHandler{
		log:     log.With("handler", "RetrainHandler"),
		retrain: retrain,
		runs:    runs,
	}
}

func (h *RetrainHandler) Status(c *gin.Context) {
	status, err := h.retrain.Status(c.Request.Context())
	if err != nil {
		h.log.Error("retrain status failed", "error", err)
		respondError(c, http.StatusInternalServerError, "retrain status failed")
		return
	}
	respondJSON(c, http.StatusOK, status)
}

type triggerRequest struct {
	RequestedBy string `json:"requested_by"`
}

// Trigger requests a retrain. Below-threshold requests come back as a
// normal 409 with the reason, not a server error.
func (h *RetrainHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	_ = c.ShouldBindJSON(&req)
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}

	result, err := h.retrain.Trigger(c.Request.Context(), req.RequestedBy)
	if err != nil {
		if errors.Is(err, services.ErrRetrainNotEligible) || errors.Is(err, services.ErrRetrainInProgress) {
			respondJSON(c, http.StatusConflict, result)
			return
		}
		h.log.Error("retrain trigger failed", "error", err)
		respondError(c, http.StatusBadGateway, "retrain trigger failed")
		return
	}
	respondJSON(c, http.StatusAccepted, result)
}

func (h *RetrainHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.runs.List(c.Request.Context(), nil, limit)
	if err != nil {
		h.log.Error("training run list failed", "error", err)
		respondError(c, http.StatusInternalServerError, "training run list failed")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"runs": runs})
}

type runResultRequest struct {
	Success              bool     `json:"success"`
	ModelPath            string   `json:"model_path"`
	ValidationSamples    int      `json:"validation_samples"`
	BLEUScore            *float64 `json:"bleu_score"`
	ChrFScore            *float64 `json:"chrf_score"`
	StyleSimilarityScore *float64 `json:"style_similarity_score"`
	Notes                string   `json:"notes"`
}

// ReportResult is the trainer's callback with the terminal outcome of a
// run.
func (h *RetrainHandler) ReportResult(c *gin.Context) {
	runID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req runResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid run result payload")
		return
	}

	run, err := h.retrain.ReportResult(c.Request.Context(), runID, services.RunResult{
		Success:              req.Success,
		ModelPath:            req.ModelPath,
		ValidationSamples:    req.ValidationSamples,
		BLEUScore:            req.BLEUScore,
		ChrFScore:            req.ChrFScore,
		StyleSimilarityScore: req.StyleSimilarityScore,
		Notes:                req.Notes,
	})
	if err != nil {
		if errors.Is(err, services.ErrTrainingRunNotFound) {
			respondError(c, http.StatusNotFound, "training run not found")
			return
		}
		h.log.Error("record run result failed", "run_id", runID, "error", err)
		respondError(c, http.StatusConflict, err.Error())
		return
	}
	respondJSON(c, http.StatusOK, run)
}

func (h *RetrainHandler) Promote(c *gin.Context) {
	runID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	run, err := h.retrain.Promote(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, services.ErrTrainingRunNotFound) {
			respondError(c, http.StatusNotFound, "training run not found")
			return
		}
		respondError(c, http.StatusConflict, err.Error())
		return
	}
	respondJSON(c, http.StatusOK, run)
}
