package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

// TranslateResult is what the editor UI renders after a segment translates.
type TranslateResult struct {
	SegmentID            uuid.UUID `json:"segment_id"`
	TranslatedText       string    `json:"translated_text"`
	TranslationSource    string    `json:"translation_source"`
	StyleSimilarityScore *float64  `json:"style_similarity_score,omitempty"`
	StyleMemoryEntryID   *uuid.UUID `json:"style_memory_entry_id,omitempty"`
	ModelVersion         string    `json:"model_version,omitempty"`
}

// TranslationService translates one segment: style memory first, base model
// as fallback. It records provenance and the attribution split on the
// segment row.
type TranslationService interface {
	TranslateSegment(ctx context.Context, segmentID uuid.UUID) (*TranslateResult, error)
}

type translationService struct {
	log         *logger.Logger
	db          *gorm.DB
	segments    repos.SegmentRepo
	runs        repos.TrainingRunRepo
	retrieval   RetrievalService
	translator  TranslatorClient
	attribution *AttributionCalculator
}

func NewTranslationService(
	log *logger.Logger,
	db *gorm.DB,
	segments repos.SegmentRepo,
	runs repos.TrainingRunRepo,
	retrieval RetrievalService,
	translator TranslatorClient,
	attribution *AttributionCalculator,
) TranslationService {
	return &translationService{
		log:         log.With("service", "TranslationService"),
		db:          db,
		segments:    segments,
		runs:        runs,
		retrieval:   retrieval,
		translator:  translator,
		attribution: attribution,
	}
}

func (s *translationService) TranslateSegment(ctx context.Context, segmentID uuid.UUID) (*TranslateResult, error) {
	seg, err := s.segments.GetByID(ctx, nil, segmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSegmentNotFound
		}
		return nil, fmt.Errorf("load segment: %w", err)
	}
	if seg == nil {
		return nil, ErrSegmentNotFound
	}

	var (
		translatedText string
		source         = types.TranslationSourceModel
		similarity     *float64
		entryID        *uuid.UUID
		modelVersion   string
	)

	match, err := s.retrieval.Retrieve(ctx, seg.SourceText)
	switch {
	case err != nil && errors.Is(err, ErrEmbeddingUnavailable):
		// Degrade to the model path; translation must not block on the
		// embedding provider.
		s.log.Warn("retrieval skipped, embedding unavailable", "segment_id", seg.ID)
	case err != nil:
		s.log.Warn("retrieval failed, falling back to model", "segment_id", seg.ID, "error", err)
	case match != nil:
		translatedText = match.PreferredTranslation
		source = types.TranslationSourceStyleMemory
		sim := match.Similarity
		similarity = &sim
		id := match.EntryID
		entryID = &id
	}

	if source == types.TranslationSourceModel {
		modelVersion, translatedText, err = s.translateWithModel(ctx, seg)
		if err != nil {
			return nil, err
		}
	}

	attr := s.attribution.Compute(SegmentFacts{
		HasOverride:     false,
		FromStyleMemory: source == types.TranslationSourceStyleMemory,
		StyleSimilarity: similarity,
	})

	updates := map[string]interface{}{
		"translated_text":    translatedText,
		"status":             types.SegmentStatusTranslated,
		"translation_source": source,
		"from_style_memory":  source == types.TranslationSourceStyleMemory,
		"override_pct":       attr.OverridePct,
		"style_pct":          attr.StylePct,
		"model_pct":          attr.ModelPct,
		"updated_at":         time.Now().UTC(),
	}
	if similarity != nil {
		updates["style_similarity_score"] = *similarity
	} else {
		updates["style_similarity_score"] = nil
	}
	if err := s.segments.UpdateFields(ctx, nil, seg.ID, updates); err != nil {
		return nil, fmt.Errorf("persist translation: %w", err)
	}

	return &TranslateResult{
		SegmentID:            seg.ID,
		TranslatedText:       translatedText,
		TranslationSource:    source,
		StyleSimilarityScore: similarity,
		StyleMemoryEntryID:   entryID,
		ModelVersion:         modelVersion,
	}, nil
}

func (s *translationService) translateWithModel(ctx context.Context, seg *types.Segment) (version, text string, err error) {
	req := TranslateModelRequest{SourceText: seg.SourceText}
	if promoted, runErr := s.runs.GetPromoted(ctx, nil); runErr == nil && promoted != nil {
		req.ModelVersion = promoted.Version
	} else if runErr != nil && !errors.Is(runErr, gorm.ErrRecordNotFound) {
		s.log.Warn("promoted run lookup failed", "error", runErr)
	}

	result, err := s.translator.Translate(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("model translation failed: %w", err)
	}
	version = result.ModelVersion
	if version == "" {
		version = req.ModelVersion
	}
	return version, result.TranslatedText, nil
}
