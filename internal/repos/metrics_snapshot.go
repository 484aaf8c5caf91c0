package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

type MetricsSnapshotRepo interface {
	// UpsertForDate writes the rollup row for the snapshot's date, replacing
	// any existing row for that date.
	UpsertForDate(ctx context.Context, tx *gorm.DB, snapshot *types.MetricsSnapshot) (*types.MetricsSnapshot, error)
	GetByDate(ctx context.Context, tx *gorm.DB, date time.Time) (*types.MetricsSnapshot, error)
	GetLatest(ctx context.Context, tx *gorm.DB) (*types.MetricsSnapshot, error)
}

type metricsSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetricsSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) MetricsSnapshotRepo {
	return &metricsSnapshotRepo{
		db:  db,
		log: baseLog.With("repo", "MetricsSnapshotRepo"),
	}
}

func (r *metricsSnapshotRepo) UpsertForDate(ctx context.Context, tx *gorm.DB, snapshot *types.MetricsSnapshot) (*types.MetricsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if snapshot == nil {
		return nil, nil
	}
	snapshot.Date = truncateToDate(snapshot.Date)
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"bleu_score", "chrf_score", "style_similarity_score",
				"override_rate", "attribution_ratio",
				"total_segments", "overridden_segments", "updated_at",
			}),
		}).
		Create(snapshot).Error
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *metricsSnapshotRepo) GetByDate(ctx context.Context, tx *gorm.DB, date time.Time) (*types.MetricsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.MetricsSnapshot
	err := transaction.WithContext(ctx).
		Where("date = ?", truncateToDate(date)).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *metricsSnapshotRepo) GetLatest(ctx context.Context, tx *gorm.DB) (*types.MetricsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.MetricsSnapshot
	err := transaction.WithContext(ctx).
		Order("date DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
