package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

func TestRollupTodayAggregates(t *testing.T) {
	log := newTestLogger(t)
	gdb := newTestDB(t)
	segments := repos.NewSegmentRepo(gdb, log)
	runs := repos.NewTrainingRunRepo(gdb, log)
	snapshots := repos.NewMetricsSnapshotRepo(gdb, log)
	svc := NewMetricsService(log, segments, runs, snapshots)

	bookID := uuid.New()
	text := "t"
	seed := []*types.Segment{
		{BookID: bookID, SegmentIndex: 0, SourceText: "a", Status: types.SegmentStatusPending},
		{BookID: bookID, SegmentIndex: 1, SourceText: "b", TranslatedText: &text, Status: types.SegmentStatusTranslated},
		{BookID: bookID, SegmentIndex: 2, SourceText: "c", TranslatedText: &text, Status: types.SegmentStatusTranslated, FromStyleMemory: true},
		{BookID: bookID, SegmentIndex: 3, SourceText: "d", TranslatedText: &text, Status: types.SegmentStatusOverridden, HasOverride: true},
		{BookID: bookID, SegmentIndex: 4, SourceText: "e", TranslatedText: &text, Status: types.SegmentStatusOverridden, HasOverride: true},
	}
	if _, err := segments.Create(context.Background(), nil, seed); err != nil {
		t.Fatalf("seed segments: %v", err)
	}

	bleu, chrf, styleSim := 30.5, 52.1, 0.88
	now := time.Now().UTC()
	if _, err := runs.Create(context.Background(), nil, &types.TrainingRun{
		Version:              "v-test",
		Status:               types.TrainingRunStatusCompleted,
		SnapshotAt:           now.Add(-time.Hour),
		StartedAt:            now.Add(-time.Hour),
		CompletedAt:          &now,
		BLEUScore:            &bleu,
		ChrFScore:            &chrf,
		StyleSimilarityScore: &styleSim,
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	snapshot, err := svc.RollupToday(context.Background())
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if snapshot.TotalSegments != 5 {
		t.Fatalf("total = %d, want 5", snapshot.TotalSegments)
	}
	if snapshot.OverriddenSegments != 2 {
		t.Fatalf("overridden = %d, want 2", snapshot.OverriddenSegments)
	}
	// 2 of 5 segments overridden.
	if math.Abs(snapshot.OverrideRate-40.0) > 1e-9 {
		t.Fatalf("override rate = %g, want 40", snapshot.OverrideRate)
	}
	// 1 of 4 translated segments came from style memory.
	if math.Abs(snapshot.AttributionRatio-25.0) > 1e-9 {
		t.Fatalf("attribution ratio = %g, want 25", snapshot.AttributionRatio)
	}
	if snapshot.BLEUScore != bleu || snapshot.ChrFScore != chrf {
		t.Fatalf("scores = %g/%g", snapshot.BLEUScore, snapshot.ChrFScore)
	}

	// Rerunning the same day updates the single row instead of duplicating
	// it.
	if _, err := svc.RollupToday(context.Background()); err != nil {
		t.Fatalf("second rollup: %v", err)
	}
	var count int64
	if err := gdb.Model(&types.MetricsSnapshot{}).Count(&count).Error; err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("snapshot rows = %d, want 1", count)
	}

	latest, err := svc.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.TotalSegments != 5 {
		t.Fatalf("latest = %+v", latest)
	}
}
