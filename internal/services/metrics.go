package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

// MetricsService builds the daily rollup. Quality scores come from the last
// completed training run; adoption counters come straight from the segment
// table.
type MetricsService interface {
	RollupToday(ctx context.Context) (*types.MetricsSnapshot, error)
	Latest(ctx context.Context) (*types.MetricsSnapshot, error)
	ForDate(ctx context.Context, date time.Time) (*types.MetricsSnapshot, error)
}

type metricsService struct {
	log       *logger.Logger
	segments  repos.SegmentRepo
	runs      repos.TrainingRunRepo
	snapshots repos.MetricsSnapshotRepo
	now       func() time.Time
}

func NewMetricsService(
	log *logger.Logger,
	segments repos.SegmentRepo,
	runs repos.TrainingRunRepo,
	snapshots repos.MetricsSnapshotRepo,
) MetricsService {
	return &metricsService{
		log:       log.With("service", "MetricsService"),
		segments:  segments,
		runs:      runs,
		snapshots: snapshots,
		now:       time.Now,
	}
}

func (s *metricsService) RollupToday(ctx context.Context) (*types.MetricsSnapshot, error) {
	var (
		total, translated, overridden, fromMemory int64
		lastCompleted                             *types.TrainingRun
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = s.segments.CountTotal(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		translated, err = s.segments.CountTranslated(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		overridden, err = s.segments.CountByStatus(gctx, nil, types.SegmentStatusOverridden)
		return err
	})
	g.Go(func() (err error) {
		fromMemory, err = s.segments.CountFromStyleMemory(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		lastCompleted, err = s.runs.GetLastCompleted(gctx, nil)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lastCompleted = nil
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rollup counters: %w", err)
	}

	snapshot := &types.MetricsSnapshot{
		Date:               s.now().UTC(),
		TotalSegments:      int(total),
		OverriddenSegments: int(overridden),
	}
	// Both rates are percentages. Override rate is measured against the whole
	// corpus; the attribution ratio is the share of translated segments whose
	// text came from style memory.
	if total > 0 {
		snapshot.OverrideRate = float64(overridden) / float64(total) * 100
	}
	if translated > 0 {
		snapshot.AttributionRatio = float64(fromMemory) / float64(translated) * 100
	}
	if lastCompleted != nil {
		if lastCompleted.BLEUScore != nil {
			snapshot.BLEUScore = *lastCompleted.BLEUScore
		}
		if lastCompleted.ChrFScore != nil {
			snapshot.ChrFScore = *lastCompleted.ChrFScore
		}
		if lastCompleted.StyleSimilarityScore != nil {
			snapshot.StyleSimilarityScore = *lastCompleted.StyleSimilarityScore
		}
	}

	stored, err := s.snapshots.UpsertForDate(ctx, nil, snapshot)
	if err != nil {
		return nil, fmt.Errorf("upsert rollup: %w", err)
	}
	s.log.Info(
		"metrics rollup written",
		"date", stored.Date.Format("2006-01-02"),
		"override_rate", stored.OverrideRate,
		"attribution_ratio", stored.AttributionRatio,
	)
	return stored, nil
}

func (s *metricsService) Latest(ctx context.Context) (*types.MetricsSnapshot, error) {
	return s.snapshots.GetLatest(ctx, nil)
}

func (s *metricsService) ForDate(ctx context.Context, date time.Time) (*types.MetricsSnapshot, error) {
	return s.snapshots.GetByDate(ctx, nil, date)
}
