package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

// StyleMemoryRepo records approved entries. Entries are immutable after
// creation; corrections create new entries, so there is no update method.
// Delete exists only to roll back an entry whose vector upsert failed.
type StyleMemoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.StyleMemoryEntry) (*types.StyleMemoryEntry, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StyleMemoryEntry, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.StyleMemoryEntry, error)
	GetBySegmentID(ctx context.Context, tx *gorm.DB, segmentID uuid.UUID) (*types.StyleMemoryEntry, error)
	CountAll(ctx context.Context, tx *gorm.DB) (int64, error)
	SetEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, embedding []byte, dim int) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type styleMemoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStyleMemoryRepo(db *gorm.DB, baseLog *logger.Logger) StyleMemoryRepo {
	return &styleMemoryRepo{
		db:  db,
		log: baseLog.With("repo", "StyleMemoryRepo"),
	}
}

func (r *styleMemoryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.StyleMemoryEntry) (*types.StyleMemoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *styleMemoryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StyleMemoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var entry types.StyleMemoryEntry
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *styleMemoryRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.StyleMemoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StyleMemoryEntry
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *styleMemoryRepo) GetBySegmentID(ctx context.Context, tx *gorm.DB, segmentID uuid.UUID) (*types.StyleMemoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if segmentID == uuid.Nil {
		return nil, nil
	}
	var entry types.StyleMemoryEntry
	err := transaction.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("approved_at DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry, nil
}

func (r *styleMemoryRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.StyleMemoryEntry{}).
		Count(&count).Error
	return count, err
}

// SetEmbedding records the audit copy of the vector after the index write
// lands. The only mutation entries ever see.
func (r *styleMemoryRepo) SetEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, embedding []byte, dim int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.StyleMemoryEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":     datatypes.JSON(embedding),
			"embedding_dim": dim,
		}).Error
}

func (r *styleMemoryRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.StyleMemoryEntry{}).Error
}
