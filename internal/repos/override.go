package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

// OverrideRepo is append-only from the editor's side. There is deliberately
// no update or delete method for ledger content: the ledger never loses
// history even when the visible segment state is overwritten. The only
// mutation is ClaimUnconsumed, which stamps rows with the training run that
// consumed them.
type OverrideRepo interface {
	Create(ctx context.Context, tx *gorm.DB, override *types.Override) (*types.Override, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Override, error)
	ListBySegment(ctx context.Context, tx *gorm.DB, segmentID uuid.UUID) ([]*types.Override, error)
	// CountUnconsumed returns the number of ledger rows no training run has
	// claimed yet; this is the pending-corrections counter.
	CountUnconsumed(ctx context.Context, tx *gorm.DB) (int64, error)
	// ClaimUnconsumed stamps every unclaimed row with runID and returns how
	// many rows it claimed. Rows whose transaction commits after the claim
	// stay unclaimed and count toward the next cycle.
	ClaimUnconsumed(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (int64, error)
	OldestCreatedAt(ctx context.Context, tx *gorm.DB) (*time.Time, error)
}

type overrideRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOverrideRepo(db *gorm.DB, baseLog *logger.Logger) OverrideRepo {
	return &overrideRepo{
		db:  db,
		log: baseLog.With("repo", "OverrideRepo"),
	}
}

func (r *overrideRepo) Create(ctx context.Context, tx *gorm.DB, override *types.Override) (*types.Override, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if override == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(override).Error; err != nil {
		return nil, err
	}
	return override, nil
}

func (r *overrideRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Override, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Override
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *overrideRepo) ListBySegment(ctx context.Context, tx *gorm.DB, segmentID uuid.UUID) ([]*types.Override, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Override
	if segmentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *overrideRepo) CountUnconsumed(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Override{}).
		Where("consumed_by_run_id IS NULL").
		Count(&count).Error
	return count, err
}

func (r *overrideRepo) ClaimUnconsumed(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if runID == uuid.Nil {
		return 0, nil
	}
	result := transaction.WithContext(ctx).
		Model(&types.Override{}).
		Where("consumed_by_run_id IS NULL").
		Update("consumed_by_run_id", runID)
	return result.RowsAffected, result.Error
}

func (r *overrideRepo) OldestCreatedAt(ctx context.Context, tx *gorm.DB) (*time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Override
	err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	t := row.CreatedAt
	return &t, nil
}
