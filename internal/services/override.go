package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

type OverrideRequest struct {
	SegmentID          uuid.UUID
	NewTranslation     string
	Engine             string
	Reason             string
	UserID             *uuid.UUID
	OverridePercentage *float64
	Approved           bool
}

type OverrideResult struct {
	LedgerEntryID      uuid.UUID  `json:"ledger_entry_id"`
	StyleMemoryEntryID *uuid.UUID `json:"style_memory_entry_id,omitempty"`
	OverridePct        float64    `json:"override_pct"`
	StylePct           float64    `json:"style_pct"`
	ModelPct           float64    `json:"model_pct"`
}

// OverrideService applies an editor correction: ledger append, segment
// update and, when approved, a style-memory insert — one coordinated unit
// per segment. The embedding happens afterwards in the background; the
// editor is never blocked on the embedding provider.
type OverrideService interface {
	OverrideSegment(ctx context.Context, req OverrideRequest) (*OverrideResult, error)
}

type overrideService struct {
	log         *logger.Logger
	db          *gorm.DB
	segments    repos.SegmentRepo
	overrides   repos.OverrideRepo
	memory      repos.StyleMemoryRepo
	attribution *AttributionCalculator
	inserter    *MemoryInserter
}

func NewOverrideService(
	log *logger.Logger,
	db *gorm.DB,
	segments repos.SegmentRepo,
	overrides repos.OverrideRepo,
	memory repos.StyleMemoryRepo,
	attribution *AttributionCalculator,
	inserter *MemoryInserter,
) OverrideService {
	return &overrideService{
		log:         log.With("service", "OverrideService"),
		db:          db,
		segments:    segments,
		overrides:   overrides,
		memory:      memory,
		attribution: attribution,
		inserter:    inserter,
	}
}

func (s *overrideService) OverrideSegment(ctx context.Context, req OverrideRequest) (*OverrideResult, error) {
	newText := strings.TrimSpace(req.NewTranslation)
	if newText == "" {
		return nil, fmt.Errorf("new translation is required")
	}
	engine := strings.TrimSpace(req.Engine)
	if engine == "" {
		engine = types.EngineManual
	}
	if req.OverridePercentage != nil {
		pct := *req.OverridePercentage
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("override percentage must be in [0,100], got %g", pct)
		}
	}

	var result OverrideResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock serializes concurrent overrides of the same segment:
		// last writer wins on the visible translation, every ledger row
		// persists.
		seg, err := s.segments.GetByIDForUpdate(ctx, tx, req.SegmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSegmentNotFound
			}
			return fmt.Errorf("lock segment: %w", err)
		}
		if seg == nil {
			return ErrSegmentNotFound
		}

		ledgerRow, err := s.overrides.Create(ctx, tx, &types.Override{
			SegmentID:      seg.ID,
			OldTranslation: seg.TranslatedText,
			NewTranslation: newText,
			UserID:         req.UserID,
			Engine:         engine,
			Reason:         req.Reason,
		})
		if err != nil {
			return fmt.Errorf("append override ledger: %w", err)
		}
		result.LedgerEntryID = ledgerRow.ID

		overrideSim := overrideSimilarity(seg.TranslatedText, newText)

		attr := s.attribution.Compute(SegmentFacts{
			HasOverride:        true,
			OverridePercentage: req.OverridePercentage,
			FromStyleMemory:    seg.FromStyleMemory,
			StyleSimilarity:    seg.StyleSimilarityScore,
		})
		result.OverridePct = attr.OverridePct
		result.StylePct = attr.StylePct
		result.ModelPct = attr.ModelPct

		updates := map[string]interface{}{
			"translated_text":           newText,
			"status":                    types.SegmentStatusOverridden,
			"has_override":              true,
			"override_similarity_score": overrideSim,
			"override_pct":              attr.OverridePct,
			"style_pct":                 attr.StylePct,
			"model_pct":                 attr.ModelPct,
			"updated_at":                time.Now().UTC(),
		}
		if req.OverridePercentage != nil {
			updates["override_percentage"] = *req.OverridePercentage
		}
		if err := s.segments.UpdateFields(ctx, tx, seg.ID, updates); err != nil {
			return fmt.Errorf("update segment: %w", err)
		}

		if !req.Approved {
			return nil
		}

		segID := seg.ID
		entry, err := s.memory.Create(ctx, tx, &types.StyleMemoryEntry{
			SegmentID:            &segID,
			SourceText:           seg.SourceText,
			PreferredTranslation: newText,
			Embedding:            datatypes.JSON(jsonNull),
			ApprovedBy:           req.UserID,
			ApprovedAt:           time.Now().UTC(),
			Engine:               engine,
			SimilarityScore:      overrideSim,
		})
		if err != nil {
			return fmt.Errorf("insert style memory entry: %w", err)
		}
		result.StyleMemoryEntryID = &entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.StyleMemoryEntryID != nil && s.inserter != nil {
		s.inserter.Enqueue(*result.StyleMemoryEntryID)
	}
	return &result, nil
}

var jsonNull = json.RawMessage("null")

// overrideSimilarity is a lexical ratio between the replaced translation
// and the correction, recorded on the segment at override time. Token-level
// so punctuation-only edits still score high.
func overrideSimilarity(oldText *string, newText string) *float64 {
	if oldText == nil || strings.TrimSpace(*oldText) == "" {
		zero := 0.0
		return &zero
	}
	a := strings.Fields(strings.ToLower(*oldText))
	b := strings.Fields(strings.ToLower(newText))
	if len(a) == 0 && len(b) == 0 {
		one := 1.0
		return &one
	}
	ratio := 2.0 * float64(lcsLength(a, b)) / float64(len(a)+len(b))
	return &ratio
}

func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
