package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/config"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

type fakeTrainer struct {
	calls []StartRunRequest
	err   error
}

func (f *fakeTrainer) StartRun(_ context.Context, req StartRunRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

type retrainFixture struct {
	db        *gorm.DB
	runs      repos.TrainingRunRepo
	overrides repos.OverrideRepo
	trainer   *fakeTrainer
	svc       RetrainService
}

func newRetrainFixture(t *testing.T, threshold int) *retrainFixture {
	t.Helper()
	log := newTestLogger(t)
	gdb := newTestDB(t)
	runs := repos.NewTrainingRunRepo(gdb, log)
	overrides := repos.NewOverrideRepo(gdb, log)
	trainer := &fakeTrainer{}
	svc := NewRetrainService(
		log, gdb, runs, overrides, trainer,
		config.RetrainPolicy{
			OverrideThreshold: threshold,
			Interval:          14 * 24 * time.Hour,
			CheckEvery:        "@every 10m",
		},
		config.PromotionPolicy{BLEUTolerance: 1.0, ChrFTolerance: 1.0},
		"",
	)
	return &retrainFixture{db: gdb, runs: runs, overrides: overrides, trainer: trainer, svc: svc}
}

func (f *retrainFixture) seedOverrides(t *testing.T, n int, createdAt time.Time) {
	t.Helper()
	rows := make([]*types.Override, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &types.Override{
			ID:             uuid.New(),
			SegmentID:      uuid.New(),
			NewTranslation: "corrected",
			Engine:         types.EngineManual,
			CreatedAt:      createdAt,
		})
	}
	if err := f.db.Create(rows).Error; err != nil {
		t.Fatalf("seed overrides: %v", err)
	}
}

func TestStatusIdleBelowThreshold(t *testing.T) {
	f := newRetrainFixture(t, 500)
	f.seedOverrides(t, 499, time.Now().Add(-time.Hour))

	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != RetrainStateIdle {
		t.Fatalf("state = %q, want idle", status.State)
	}
	if status.PendingCount != 499 {
		t.Fatalf("pending = %d, want 499", status.PendingCount)
	}
}

func TestStatusFlipsEligibleAtThreshold(t *testing.T) {
	f := newRetrainFixture(t, 500)
	f.seedOverrides(t, 499, time.Now().Add(-time.Hour))
	f.seedOverrides(t, 1, time.Now())

	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != RetrainStateEligible {
		t.Fatalf("state = %q, want eligible", status.State)
	}
	if status.PendingCount != 500 {
		t.Fatalf("pending = %d, want 500", status.PendingCount)
	}
}

func TestStatusEligibleWhenIntervalElapsed(t *testing.T) {
	f := newRetrainFixture(t, 500)
	// Far below the counter threshold, but the oldest correction predates
	// the interval.
	f.seedOverrides(t, 3, time.Now().Add(-15*24*time.Hour))

	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.IntervalElapsed {
		t.Fatal("interval should be elapsed")
	}
	if status.State != RetrainStateEligible {
		t.Fatalf("state = %q, want eligible", status.State)
	}
}

func TestTriggerBelowThresholdRejected(t *testing.T) {
	f := newRetrainFixture(t, 500)
	f.seedOverrides(t, 10, time.Now())

	result, err := f.svc.Trigger(context.Background(), "test")
	if !errors.Is(err, ErrRetrainNotEligible) {
		t.Fatalf("err = %v, want ErrRetrainNotEligible", err)
	}
	if result == nil || result.Accepted {
		t.Fatalf("result = %+v, want rejected", result)
	}
	if len(f.trainer.calls) != 0 {
		t.Fatal("trainer must not be dispatched")
	}
}

func TestTriggerSnapshotsAndResetsCounter(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))

	result, err := f.svc.Trigger(context.Background(), "test")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !result.Accepted || result.Run == nil {
		t.Fatalf("result = %+v", result)
	}
	if result.Run.Status != types.TrainingRunStatusTraining {
		t.Fatalf("run status = %q", result.Run.Status)
	}
	if result.Run.TrainSamples != 6 {
		t.Fatalf("train samples = %d, want 6", result.Run.TrainSamples)
	}
	if len(f.trainer.calls) != 1 {
		t.Fatalf("trainer dispatched %d times, want 1", len(f.trainer.calls))
	}

	// The trigger claims the rows; the same overrides never count twice.
	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PendingCount != 0 {
		t.Fatalf("pending after trigger = %d, want 0", status.PendingCount)
	}
	if status.State != RetrainStateTraining {
		t.Fatalf("state = %q, want training", status.State)
	}
}

func TestOverrideCommittedDuringTriggerCountsNextCycle(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))

	result, err := f.svc.Trigger(context.Background(), "test")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if result.Run.TrainSamples != 6 {
		t.Fatalf("train samples = %d, want 6", result.Run.TrainSamples)
	}

	// A correction whose transaction was in flight during the trigger commits
	// with a created_at just before the run's snapshot time. The run's claim
	// never covered it, so it must stay pending for the next cycle.
	f.seedOverrides(t, 1, result.Run.SnapshotAt.Add(-time.Millisecond))

	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PendingCount != 1 {
		t.Fatalf("pending = %d, want 1", status.PendingCount)
	}
}

func TestSecondTriggerWhileTrainingRejected(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))

	if _, err := f.svc.Trigger(context.Background(), "first"); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	f.seedOverrides(t, 6, time.Now())

	_, err := f.svc.Trigger(context.Background(), "second")
	if !errors.Is(err, ErrRetrainInProgress) {
		t.Fatalf("err = %v, want ErrRetrainInProgress", err)
	}
	if len(f.trainer.calls) != 1 {
		t.Fatalf("trainer dispatched %d times, want 1", len(f.trainer.calls))
	}
}

func TestFailedRunDoesNotRecreditCounter(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))

	result, err := f.svc.Trigger(context.Background(), "test")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	// Two corrections arrive while the job runs.
	f.seedOverrides(t, 2, time.Now())

	run, err := f.svc.ReportResult(context.Background(), result.Run.ID, RunResult{Success: false, Notes: "gpu preempted"})
	if err != nil {
		t.Fatalf("report result: %v", err)
	}
	if run.Status != types.TrainingRunStatusFailed {
		t.Fatalf("run status = %q, want failed", run.Status)
	}

	// Claims survive a failed run: the six claimed overrides stay spent.
	status, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PendingCount != 2 {
		t.Fatalf("pending = %d, want 2", status.PendingCount)
	}
	if status.State != RetrainStateIdle {
		t.Fatalf("state = %q, want idle", status.State)
	}
}

func TestReportResultRecordsMetricsAndEligibility(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))
	result, err := f.svc.Trigger(context.Background(), "test")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	bleu, chrf := 31.2, 55.4
	run, err := f.svc.ReportResult(context.Background(), result.Run.ID, RunResult{
		Success:           true,
		ModelPath:         "s3://models/v1",
		ValidationSamples: 120,
		BLEUScore:         &bleu,
		ChrFScore:         &chrf,
	})
	if err != nil {
		t.Fatalf("report result: %v", err)
	}
	if run.Status != types.TrainingRunStatusCompleted {
		t.Fatalf("status = %q", run.Status)
	}
	if run.BLEUScore == nil || *run.BLEUScore != bleu {
		t.Fatalf("bleu = %v", run.BLEUScore)
	}
	if !run.PromotionEligible {
		t.Fatal("first completed run should be promotion eligible")
	}
	if run.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestCanaryDegradationBlocksPromotion(t *testing.T) {
	f := newRetrainFixture(t, 5)

	// Promote a baseline run.
	f.seedOverrides(t, 6, time.Now().Add(-2*time.Hour))
	first, err := f.svc.Trigger(context.Background(), "baseline")
	if err != nil {
		t.Fatalf("baseline trigger: %v", err)
	}
	bleu, chrf := 32.0, 56.0
	if _, err := f.svc.ReportResult(context.Background(), first.Run.ID, RunResult{
		Success: true, BLEUScore: &bleu, ChrFScore: &chrf,
	}); err != nil {
		t.Fatalf("baseline result: %v", err)
	}
	if _, err := f.svc.Promote(context.Background(), first.Run.ID); err != nil {
		t.Fatalf("baseline promote: %v", err)
	}

	// A second run degrades BLEU beyond the 1.0 tolerance.
	f.seedOverrides(t, 6, time.Now().Add(time.Minute))
	second, err := f.svc.Trigger(context.Background(), "canary")
	if err != nil {
		t.Fatalf("canary trigger: %v", err)
	}
	worseBLEU := 30.5
	run, err := f.svc.ReportResult(context.Background(), second.Run.ID, RunResult{
		Success: true, BLEUScore: &worseBLEU, ChrFScore: &chrf,
	})
	if err != nil {
		t.Fatalf("canary result: %v", err)
	}
	if run.PromotionEligible {
		t.Fatal("degraded canary must not be promotion eligible")
	}
	if _, err := f.svc.Promote(context.Background(), run.ID); err == nil {
		t.Fatal("promoting an ineligible run must fail")
	}

	// The baseline stays promoted.
	promoted, err := f.runs.GetPromoted(context.Background(), nil)
	if err != nil {
		t.Fatalf("promoted lookup: %v", err)
	}
	if promoted == nil || promoted.ID != first.Run.ID {
		t.Fatal("baseline should remain the promoted version")
	}
}

func TestReportResultTwiceRejected(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))
	result, err := f.svc.Trigger(context.Background(), "test")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if _, err := f.svc.ReportResult(context.Background(), result.Run.ID, RunResult{Success: false}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if _, err := f.svc.ReportResult(context.Background(), result.Run.ID, RunResult{Success: true}); err == nil {
		t.Fatal("second report must be rejected, runs never move backward")
	}
}

func TestTrainerDispatchFailureMarksRunFailed(t *testing.T) {
	f := newRetrainFixture(t, 5)
	f.trainer.err = errors.New("trainer unreachable")
	f.seedOverrides(t, 6, time.Now().Add(-time.Minute))

	if _, err := f.svc.Trigger(context.Background(), "test"); err == nil {
		t.Fatal("dispatch failure must surface")
	}

	runs, err := f.runs.List(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != types.TrainingRunStatusFailed {
		t.Fatalf("run status = %q, want failed", runs[0].Status)
	}
}
