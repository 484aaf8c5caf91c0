package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/types"
)

type SegmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, segments []*types.Segment) ([]*types.Segment, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Segment, error)
	// GetByIDForUpdate row-locks the segment so concurrent overrides on the
	// same segment serialize.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Segment, error)
	ListByBook(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, offset, limit int) ([]*types.Segment, int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	CountTotal(ctx context.Context, tx *gorm.DB) (int64, error)
	CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error)
	CountTranslated(ctx context.Context, tx *gorm.DB) (int64, error)
	CountFromStyleMemory(ctx context.Context, tx *gorm.DB) (int64, error)
}

type segmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSegmentRepo(db *gorm.DB, baseLog *logger.Logger) SegmentRepo {
	return &segmentRepo{
		db:  db,
		log: baseLog.With("repo", "SegmentRepo"),
	}
}

func (r *segmentRepo) Create(ctx context.Context, tx *gorm.DB, segments []*types.Segment) ([]*types.Segment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(segments) == 0 {
		return []*types.Segment{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *segmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Segment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var segment types.Segment
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&segment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &segment, nil
}

func (r *segmentRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Segment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	query := transaction.WithContext(ctx)
	// SQLite serializes writers on its own and rejects FOR UPDATE.
	if transaction.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var segment types.Segment
	err := query.
		Where("id = ?", id).
		First(&segment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &segment, nil
}

func (r *segmentRepo) ListByBook(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, offset, limit int) ([]*types.Segment, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Segment
	if bookID == uuid.Nil {
		return out, 0, nil
	}
	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("book_id = ?", bookID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if err := transaction.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("segment_index ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *segmentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Segment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *segmentRepo) CountTotal(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Count(&count).Error
	return count, err
}

func (r *segmentRepo) CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *segmentRepo) CountTranslated(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("translated_text IS NOT NULL AND translated_text <> ''").
		Count(&count).Error
	return count, err
}

func (r *segmentRepo) CountFromStyleMemory(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Segment{}).
		Where("from_style_memory = ? AND translated_text IS NOT NULL", true).
		Count(&count).Error
	return count, err
}
