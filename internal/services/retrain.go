package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/config"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

const (
	RetrainStateIdle     = "idle"
	RetrainStateEligible = "eligible"
	RetrainStateTraining = "training"
)

type RetrainStatus struct {
	State           string             `json:"state"`
	PendingCount    int64              `json:"pending_count"`
	Threshold       int                `json:"threshold"`
	IntervalElapsed bool               `json:"interval_elapsed"`
	LastRun         *types.TrainingRun `json:"last_run,omitempty"`
	ActiveRun       *types.TrainingRun `json:"active_run,omitempty"`
}

type TriggerResult struct {
	Accepted bool               `json:"accepted"`
	Reason   string             `json:"reason"`
	Run      *types.TrainingRun `json:"run,omitempty"`
}

// RunResult is what the external training job reports back, correlated by
// run id.
type RunResult struct {
	Success              bool
	ModelPath            string
	ValidationSamples    int
	BLEUScore            *float64
	ChrFScore            *float64
	StyleSimilarityScore *float64
	Notes                string
}

// RetrainService decides when accumulated corrections warrant a new
// fine-tuning cycle and tracks the TrainingRun lifecycle. The pending
// counter is always derived from the ledger: rows no run has claimed yet.
// There is no in-memory counter to race on, and no timestamp boundary to
// straddle; a correction committing while a trigger is in flight simply
// stays unclaimed and counts toward the next cycle.
type RetrainService interface {
	Status(ctx context.Context) (*RetrainStatus, error)
	Trigger(ctx context.Context, requestedBy string) (*TriggerResult, error)
	ReportResult(ctx context.Context, runID uuid.UUID, result RunResult) (*types.TrainingRun, error)
	Promote(ctx context.Context, runID uuid.UUID) (*types.TrainingRun, error)
}

type retrainService struct {
	log       *logger.Logger
	db        *gorm.DB
	runs      repos.TrainingRunRepo
	overrides repos.OverrideRepo
	trainer   TrainerClient
	retrain   config.RetrainPolicy
	promotion config.PromotionPolicy
	callback  string
	now       func() time.Time
}

func NewRetrainService(
	log *logger.Logger,
	db *gorm.DB,
	runs repos.TrainingRunRepo,
	overrides repos.OverrideRepo,
	trainer TrainerClient,
	retrain config.RetrainPolicy,
	promotion config.PromotionPolicy,
	callbackURL string,
) RetrainService {
	return &retrainService{
		log:       log.With("service", "RetrainService"),
		db:        db,
		runs:      runs,
		overrides: overrides,
		trainer:   trainer,
		retrain:   retrain,
		promotion: promotion,
		callback:  callbackURL,
		now:       time.Now,
	}
}

func (s *retrainService) Status(ctx context.Context) (*RetrainStatus, error) {
	status := &RetrainStatus{Threshold: s.retrain.OverrideThreshold}

	active, err := s.runs.GetActive(ctx, nil)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("active run lookup: %w", err)
	}
	if active != nil {
		status.State = RetrainStateTraining
		status.ActiveRun = active
	}

	pending, intervalElapsed, lastRun, err := s.evaluate(ctx, nil)
	if err != nil {
		return nil, err
	}
	status.PendingCount = pending
	status.IntervalElapsed = intervalElapsed
	status.LastRun = lastRun

	if status.State == "" {
		if pending >= int64(s.retrain.OverrideThreshold) || intervalElapsed {
			status.State = RetrainStateEligible
		} else {
			status.State = RetrainStateIdle
		}
	}
	return status, nil
}

// Trigger starts at most one run. The active-run check and the ledger claim
// happen inside one transaction, and a partial unique index on active runs
// backstops two instances racing past the check.
func (s *retrainService) Trigger(ctx context.Context, requestedBy string) (*TriggerResult, error) {
	var run *types.TrainingRun

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.runs.GetActive(ctx, tx)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("active run lookup: %w", err)
		}
		if active != nil {
			return ErrRetrainInProgress
		}

		pending, intervalElapsed, _, err := s.evaluate(ctx, tx)
		if err != nil {
			return err
		}
		if pending < int64(s.retrain.OverrideThreshold) && !intervalElapsed {
			return fmt.Errorf(
				"%w: pending=%d threshold=%d interval_elapsed=%t",
				ErrRetrainNotEligible, pending, s.retrain.OverrideThreshold, intervalElapsed,
			)
		}

		snapshotAt := s.now().UTC()
		created, err := s.runs.Create(ctx, tx, &types.TrainingRun{
			Version:      fmt.Sprintf("v%s", snapshotAt.Format("20060102-150405")),
			TrainSamples: int(pending),
			Status:       types.TrainingRunStatusTraining,
			SnapshotAt:   snapshotAt,
			StartedAt:    snapshotAt,
			Notes:        noteRequestedBy(requestedBy),
		})
		if err != nil {
			if isUniqueViolation(err) {
				return ErrRetrainInProgress
			}
			return fmt.Errorf("create training run: %w", err)
		}

		// Claim inside the same transaction. Overrides whose own transaction
		// commits after this statement stay unclaimed and accrue to the next
		// cycle; nothing falls between a timestamp and a count.
		claimed, err := s.overrides.ClaimUnconsumed(ctx, tx, created.ID)
		if err != nil {
			return fmt.Errorf("claim overrides: %w", err)
		}
		if int(claimed) != created.TrainSamples {
			if err := s.runs.UpdateFields(ctx, tx, created.ID, map[string]interface{}{
				"train_samples": claimed,
			}); err != nil {
				return fmt.Errorf("record claimed samples: %w", err)
			}
			created.TrainSamples = int(claimed)
		}
		run = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRetrainNotEligible) || errors.Is(err, ErrRetrainInProgress) {
			return &TriggerResult{Accepted: false, Reason: err.Error()}, err
		}
		return nil, err
	}

	if dispatchErr := s.trainer.StartRun(ctx, StartRunRequest{
		RunID:        run.ID,
		Version:      run.Version,
		SnapshotAt:   run.SnapshotAt,
		TrainSamples: run.TrainSamples,
		CallbackURL:  s.callback,
	}); dispatchErr != nil {
		// Dispatch failure is terminal for this run; the counter stays
		// reset and the operator re-triggers.
		s.log.Error("trainer dispatch failed, marking run failed", "run_id", run.ID, "error", dispatchErr)
		now := s.now().UTC()
		if updErr := s.runs.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
			"status":       types.TrainingRunStatusFailed,
			"completed_at": now,
			"notes":        "trainer dispatch failed: " + dispatchErr.Error(),
		}); updErr != nil {
			s.log.Error("marking run failed also failed", "run_id", run.ID, "error", updErr)
		}
		return nil, fmt.Errorf("trainer dispatch failed: %w", dispatchErr)
	}

	s.log.Info("retrain triggered", "run_id", run.ID, "version", run.Version, "train_samples", run.TrainSamples)
	return &TriggerResult{Accepted: true, Reason: "training started", Run: run}, nil
}

func (s *retrainService) ReportResult(ctx context.Context, runID uuid.UUID, result RunResult) (*types.TrainingRun, error) {
	var updated *types.TrainingRun

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.runs.GetByID(ctx, tx, runID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrainingRunNotFound
			}
			return fmt.Errorf("load training run: %w", err)
		}
		if run == nil {
			return ErrTrainingRunNotFound
		}
		if run.Status != types.TrainingRunStatusTraining {
			return fmt.Errorf("training run %s is %s, result already recorded", runID, run.Status)
		}

		now := s.now().UTC()
		updates := map[string]interface{}{
			"completed_at": now,
			"notes":        strings.TrimSpace(run.Notes + "\n" + result.Notes),
		}
		if !result.Success {
			// The snapshot stands; overrides consumed by this run stay consumed.
			updates["status"] = types.TrainingRunStatusFailed
		} else {
			updates["status"] = types.TrainingRunStatusCompleted
			updates["model_path"] = result.ModelPath
			updates["validation_samples"] = result.ValidationSamples
			updates["bleu_score"] = result.BLEUScore
			updates["chrf_score"] = result.ChrFScore
			updates["style_similarity_score"] = result.StyleSimilarityScore

			eligible, reason, err := s.promotionEligible(ctx, tx, result)
			if err != nil {
				return err
			}
			updates["promotion_eligible"] = eligible
			if !eligible {
				s.log.Warn("run not eligible for promotion", "run_id", runID, "reason", reason)
			}
		}

		if err := s.runs.UpdateFields(ctx, tx, runID, updates); err != nil {
			return fmt.Errorf("record run result: %w", err)
		}
		updated, err = s.runs.GetByID(ctx, tx, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("training run result recorded", "run_id", runID, "status", updated.Status)
	return updated, nil
}

// Promote flips serving to a completed, eligible run. Only bookkeeping;
// traffic routing is deployment tooling's problem.
func (s *retrainService) Promote(ctx context.Context, runID uuid.UUID) (*types.TrainingRun, error) {
	var promoted *types.TrainingRun

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.runs.GetByID(ctx, tx, runID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrainingRunNotFound
			}
			return err
		}
		if run == nil {
			return ErrTrainingRunNotFound
		}
		if run.Status != types.TrainingRunStatusCompleted {
			return fmt.Errorf("run %s is %s, only completed runs can be promoted", runID, run.Status)
		}
		if !run.PromotionEligible {
			return fmt.Errorf("run %s is not eligible for promotion", runID)
		}

		if err := s.runs.ClearPromoted(ctx, tx); err != nil {
			return fmt.Errorf("clear previous promotion: %w", err)
		}
		if err := s.runs.UpdateFields(ctx, tx, runID, map[string]interface{}{
			"promoted": true,
		}); err != nil {
			return fmt.Errorf("promote run: %w", err)
		}
		promoted, err = s.runs.GetByID(ctx, tx, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("training run promoted", "run_id", runID, "version", promoted.Version)
	return promoted, nil
}

// evaluate derives the pending counter and the interval condition. The
// counter is the count of unclaimed ledger rows, failed runs included since
// their claims stand; the interval is measured from the last completed run,
// or from the oldest override on a cold start.
func (s *retrainService) evaluate(ctx context.Context, tx *gorm.DB) (pending int64, intervalElapsed bool, lastRun *types.TrainingRun, err error) {
	latestSnapshot, err := s.runs.GetLatestSnapshot(ctx, tx)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil, fmt.Errorf("snapshot lookup: %w", err)
	}

	pending, err = s.overrides.CountUnconsumed(ctx, tx)
	if err != nil {
		return 0, false, nil, fmt.Errorf("pending count: %w", err)
	}

	lastCompleted, err := s.runs.GetLastCompleted(ctx, tx)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil, fmt.Errorf("last completed lookup: %w", err)
	}

	now := s.now().UTC()
	switch {
	case lastCompleted != nil && lastCompleted.CompletedAt != nil:
		intervalElapsed = now.Sub(*lastCompleted.CompletedAt) >= s.retrain.Interval
	case lastCompleted != nil:
		intervalElapsed = now.Sub(lastCompleted.SnapshotAt) >= s.retrain.Interval
	default:
		oldest, oldestErr := s.overrides.OldestCreatedAt(ctx, tx)
		if oldestErr != nil {
			return 0, false, nil, fmt.Errorf("oldest override lookup: %w", oldestErr)
		}
		intervalElapsed = oldest != nil && now.Sub(*oldest) >= s.retrain.Interval
	}

	lastRun = lastCompleted
	if lastRun == nil {
		lastRun = latestSnapshot
	}
	return pending, intervalElapsed, lastRun, nil
}

// promotionEligible compares the fresh run's scores against the currently
// promoted version. A canary that degrades BLEU or ChrF beyond the
// tolerance stays unpromotable; the previous version remains active.
func (s *retrainService) promotionEligible(ctx context.Context, tx *gorm.DB, result RunResult) (bool, string, error) {
	current, err := s.runs.GetPromoted(ctx, tx)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "", fmt.Errorf("promoted run lookup: %w", err)
	}
	if current == nil {
		return true, "", nil
	}

	if degrades(current.BLEUScore, result.BLEUScore, s.promotion.BLEUTolerance) {
		return false, fmt.Sprintf(
			"bleu degraded beyond tolerance %.2f (promoted=%s new=%s)",
			s.promotion.BLEUTolerance, formatScore(current.BLEUScore), formatScore(result.BLEUScore),
		), nil
	}
	if degrades(current.ChrFScore, result.ChrFScore, s.promotion.ChrFTolerance) {
		return false, fmt.Sprintf(
			"chrf degraded beyond tolerance %.2f (promoted=%s new=%s)",
			s.promotion.ChrFTolerance, formatScore(current.ChrFScore), formatScore(result.ChrFScore),
		), nil
	}
	return true, "", nil
}

func degrades(baseline, fresh *float64, tolerance float64) bool {
	if baseline == nil {
		return false
	}
	if fresh == nil {
		return true
	}
	return *baseline-*fresh > tolerance
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func noteRequestedBy(requestedBy string) string {
	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		return ""
	}
	return "triggered by " + requestedBy
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
