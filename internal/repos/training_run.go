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

type TrainingRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.TrainingRun) (*types.TrainingRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TrainingRun, error)
	// GetActive returns the run currently in training status, if any.
	GetActive(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error)
	// GetLatestSnapshot returns the run with the most recent ledger snapshot,
	// regardless of how the run ended. Failed runs keep their snapshot: they
	// do not re-credit the counter.
	GetLatestSnapshot(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error)
	GetLastCompleted(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error)
	GetPromoted(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.TrainingRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ClearPromoted(ctx context.Context, tx *gorm.DB) error
}

type trainingRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingRunRepo(db *gorm.DB, baseLog *logger.Logger) TrainingRunRepo {
	return &trainingRunRepo{
		db:  db,
		log: baseLog.With("repo", "TrainingRunRepo"),
	}
}

func (r *trainingRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.TrainingRun) (*types.TrainingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *trainingRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TrainingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.TrainingRun
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *trainingRunRepo) GetActive(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error) {
	return r.firstWhere(ctx, tx, "status = ?", types.TrainingRunStatusTraining, "started_at DESC")
}

func (r *trainingRunRepo) GetLatestSnapshot(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.TrainingRun
	err := transaction.WithContext(ctx).
		Order("snapshot_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *trainingRunRepo) GetLastCompleted(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error) {
	return r.firstWhere(ctx, tx, "status = ?", types.TrainingRunStatusCompleted, "completed_at DESC")
}

func (r *trainingRunRepo) GetPromoted(ctx context.Context, tx *gorm.DB) (*types.TrainingRun, error) {
	return r.firstWhere(ctx, tx, "promoted = ?", true, "updated_at DESC")
}

func (r *trainingRunRepo) firstWhere(ctx context.Context, tx *gorm.DB, query string, arg interface{}, order string) (*types.TrainingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.TrainingRun
	err := transaction.WithContext(ctx).
		Where(query, arg).
		Order(order).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *trainingRunRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.TrainingRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []*types.TrainingRun
	if err := transaction.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *trainingRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.TrainingRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *trainingRunRepo) ClearPromoted(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.TrainingRun{}).
		Where("promoted = ?", true).
		Updates(map[string]interface{}{
			"promoted":   false,
			"updated_at": time.Now(),
		}).Error
}
