package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/config"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/platform/vectorindex"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
)

// Candidates closer than this similarity delta are considered tied and
// resolved by approval recency, since publisher style evolves.
const tieBreakDelta = 0.005

const styleMemoryNamespace = "style-memory"

// StyleMatch is a style-memory hit above the similarity threshold.
type StyleMatch struct {
	EntryID              uuid.UUID
	SourceText           string
	PreferredTranslation string
	Similarity           float64
}

// NearestCandidate is a ranked neighbor for the diagnostic endpoint; it
// carries candidates below the threshold too.
type NearestCandidate struct {
	EntryID              uuid.UUID
	SourceText           string
	PreferredTranslation string
	Similarity           float64
	AboveThreshold       bool
}

// RetrievalService answers "does approved publisher phrasing cover this
// source text". It only reads; callers record provenance on the segment.
type RetrievalService interface {
	// Retrieve returns the best match at or above the threshold, or
	// (nil, nil) when nothing qualifies. ErrEmbeddingUnavailable means the
	// caller must take the model path.
	Retrieve(ctx context.Context, sourceText string) (*StyleMatch, error)
	NearestMatches(ctx context.Context, sourceText string, k int) ([]NearestCandidate, error)
}

type retrievalService struct {
	log    *logger.Logger
	embed  EmbedClient
	index  vectorindex.VectorStore
	memory repos.StyleMemoryRepo
	policy config.RetrievalPolicy
}

func NewRetrievalService(
	log *logger.Logger,
	embed EmbedClient,
	index vectorindex.VectorStore,
	memory repos.StyleMemoryRepo,
	policy config.RetrievalPolicy,
) RetrievalService {
	return &retrievalService{
		log:    log.With("service", "RetrievalService"),
		embed:  embed,
		index:  index,
		memory: memory,
		policy: policy,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, sourceText string) (*StyleMatch, error) {
	candidates, err := s.rankedCandidates(ctx, sourceText, s.policy.TopK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 || !candidates[0].AboveThreshold {
		return nil, nil
	}
	best := candidates[0]
	return &StyleMatch{
		EntryID:              best.EntryID,
		SourceText:           best.SourceText,
		PreferredTranslation: best.PreferredTranslation,
		Similarity:           best.Similarity,
	}, nil
}

func (s *retrievalService) NearestMatches(ctx context.Context, sourceText string, k int) ([]NearestCandidate, error) {
	if k <= 0 {
		k = s.policy.TopK
	}
	return s.rankedCandidates(ctx, sourceText, k)
}

func (s *retrievalService) rankedCandidates(ctx context.Context, sourceText string, k int) ([]NearestCandidate, error) {
	vec, err := s.embed.Embed(ctx, sourceText)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			s.log.Warn("embedding unavailable during retrieval", "error", err)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	matches, err := s.index.QueryMatches(ctx, styleMemoryNamespace, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	if len(matches) == 0 {
		// Empty index is a normal state, not an error.
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	scoreByID := make(map[uuid.UUID]float64, len(matches))
	for _, m := range matches {
		id, parseErr := uuid.Parse(m.ID)
		if parseErr != nil {
			s.log.Warn("vector match with unparseable id, skipping", "match_id", m.ID)
			continue
		}
		ids = append(ids, id)
		scoreByID[id] = m.Score
	}
	if len(ids) == 0 {
		return nil, nil
	}

	entries, err := s.memory.GetByIDs(ctx, nil, ids)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load style memory entries: %w", err)
	}

	candidates := make([]NearestCandidate, 0, len(entries))
	approvedAt := make(map[uuid.UUID]int64, len(entries))
	for _, entry := range entries {
		score := scoreByID[entry.ID]
		candidates = append(candidates, NearestCandidate{
			EntryID:              entry.ID,
			SourceText:           entry.SourceText,
			PreferredTranslation: entry.PreferredTranslation,
			Similarity:           score,
			AboveThreshold:       score >= s.policy.SimilarityThreshold,
		})
		approvedAt[entry.ID] = entry.ApprovedAt.UnixNano()
	}

	// Rank strictly by similarity first. The near-tie window is resolved in
	// a second pass so the comparator stays a strict weak ordering; folding
	// the delta into the comparator makes the sort order unspecified when
	// near-ties chain.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return approvedAt[candidates[i].EntryID] > approvedAt[candidates[j].EntryID]
	})

	// Within tieBreakDelta of the best score, prefer the most recently
	// approved phrasing.
	window := 1
	for window < len(candidates) && candidates[0].Similarity-candidates[window].Similarity <= tieBreakDelta {
		window++
	}
	if window > 1 {
		sort.SliceStable(candidates[:window], func(i, j int) bool {
			return approvedAt[candidates[i].EntryID] > approvedAt[candidates[j].EntryID]
		})
	}
	return candidates, nil
}
