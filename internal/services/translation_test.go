package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

type fakeRetrieval struct {
	match *StyleMatch
	err   error
}

func (f *fakeRetrieval) Retrieve(context.Context, string) (*StyleMatch, error) {
	return f.match, f.err
}

func (f *fakeRetrieval) NearestMatches(context.Context, string, int) ([]NearestCandidate, error) {
	return nil, nil
}

type fakeTranslator struct {
	requests []TranslateModelRequest
	result   TranslateModelResult
	err      error
}

func (f *fakeTranslator) Translate(_ context.Context, req TranslateModelRequest) (TranslateModelResult, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type translationFixture struct {
	segments   repos.SegmentRepo
	runs       repos.TrainingRunRepo
	retrieval  *fakeRetrieval
	translator *fakeTranslator
	svc        TranslationService
}

func newTranslationFixture(t *testing.T) *translationFixture {
	t.Helper()
	log := newTestLogger(t)
	gdb := newTestDB(t)
	segments := repos.NewSegmentRepo(gdb, log)
	runs := repos.NewTrainingRunRepo(gdb, log)
	retrieval := &fakeRetrieval{}
	translator := &fakeTranslator{result: TranslateModelResult{TranslatedText: "model output", ModelVersion: "base"}}
	svc := NewTranslationService(log, gdb, segments, runs, retrieval, translator, NewAttributionCalculator(0.1))
	return &translationFixture{
		segments:   segments,
		runs:       runs,
		retrieval:  retrieval,
		translator: translator,
		svc:        svc,
	}
}

func (f *translationFixture) seedSegment(t *testing.T) *types.Segment {
	t.Helper()
	created, err := f.segments.Create(context.Background(), nil, []*types.Segment{{
		BookID:       uuid.New(),
		SegmentIndex: 0,
		SourceText:   "Die See war ruhig.",
		Status:       types.SegmentStatusPending,
	}})
	if err != nil {
		t.Fatalf("seed segment: %v", err)
	}
	return created[0]
}

func TestTranslateUsesStyleMemoryHit(t *testing.T) {
	f := newTranslationFixture(t)
	seg := f.seedSegment(t)
	entryID := uuid.New()
	f.retrieval.match = &StyleMatch{
		EntryID:              entryID,
		PreferredTranslation: "The sea lay calm.",
		Similarity:           0.9,
	}

	result, err := f.svc.TranslateSegment(context.Background(), seg.ID)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.TranslatedText != "The sea lay calm." {
		t.Fatalf("text = %q", result.TranslatedText)
	}
	if result.TranslationSource != types.TranslationSourceStyleMemory {
		t.Fatalf("source = %q", result.TranslationSource)
	}
	if len(f.translator.requests) != 0 {
		t.Fatal("model must not be called on a style memory hit")
	}

	stored, _ := f.segments.GetByID(context.Background(), nil, seg.ID)
	if !stored.FromStyleMemory {
		t.Fatal("from_style_memory not set")
	}
	if stored.StyleSimilarityScore == nil || *stored.StyleSimilarityScore != 0.9 {
		t.Fatalf("similarity = %v", stored.StyleSimilarityScore)
	}
	if stored.StylePct == nil || *stored.StylePct != 90 {
		t.Fatalf("style_pct = %v, want 90", stored.StylePct)
	}
	if stored.ModelPct == nil || *stored.ModelPct != 10 {
		t.Fatalf("model_pct = %v, want 10", stored.ModelPct)
	}
}

func TestTranslateFallsBackToModelOnNoMatch(t *testing.T) {
	f := newTranslationFixture(t)
	seg := f.seedSegment(t)

	result, err := f.svc.TranslateSegment(context.Background(), seg.ID)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.TranslationSource != types.TranslationSourceModel {
		t.Fatalf("source = %q", result.TranslationSource)
	}
	if result.TranslatedText != "model output" {
		t.Fatalf("text = %q", result.TranslatedText)
	}

	stored, _ := f.segments.GetByID(context.Background(), nil, seg.ID)
	if stored.ModelPct == nil || *stored.ModelPct != 100 {
		t.Fatalf("model_pct = %v, want 100", stored.ModelPct)
	}
}

func TestTranslateDegradesWhenEmbeddingUnavailable(t *testing.T) {
	f := newTranslationFixture(t)
	seg := f.seedSegment(t)
	f.retrieval.err = ErrEmbeddingUnavailable

	result, err := f.svc.TranslateSegment(context.Background(), seg.ID)
	if err != nil {
		t.Fatalf("embedding outage must not fail translation: %v", err)
	}
	if result.TranslationSource != types.TranslationSourceModel {
		t.Fatalf("source = %q, want model fallback", result.TranslationSource)
	}
	if len(f.translator.requests) != 1 {
		t.Fatalf("translator calls = %d, want 1", len(f.translator.requests))
	}
}

func TestTranslateCarriesPromotedModelVersion(t *testing.T) {
	f := newTranslationFixture(t)
	seg := f.seedSegment(t)

	now := time.Now().UTC()
	if _, err := f.runs.Create(context.Background(), nil, &types.TrainingRun{
		Version:           "v20260815-020000",
		Status:            types.TrainingRunStatusCompleted,
		SnapshotAt:        now.Add(-time.Hour),
		StartedAt:         now.Add(-time.Hour),
		CompletedAt:       &now,
		PromotionEligible: true,
		Promoted:          true,
	}); err != nil {
		t.Fatalf("seed promoted run: %v", err)
	}

	if _, err := f.svc.TranslateSegment(context.Background(), seg.ID); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(f.translator.requests) != 1 {
		t.Fatalf("translator calls = %d", len(f.translator.requests))
	}
	if f.translator.requests[0].ModelVersion != "v20260815-020000" {
		t.Fatalf("model version = %q", f.translator.requests[0].ModelVersion)
	}
}

func TestTranslateUnknownSegment(t *testing.T) {
	f := newTranslationFixture(t)
	if _, err := f.svc.TranslateSegment(context.Background(), uuid.New()); err != ErrSegmentNotFound {
		t.Fatalf("err = %v, want ErrSegmentNotFound", err)
	}
}
