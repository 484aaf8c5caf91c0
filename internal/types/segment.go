package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SegmentStatusPending    = "pending"
	SegmentStatusTranslated = "translated"
	SegmentStatusApproved   = "approved"
	SegmentStatusOverridden = "overridden"

	TranslationSourceModel       = "model"
	TranslationSourceStyleMemory = "style_memory"
)

type Segment struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookID       uuid.UUID `gorm:"type:uuid;not null;index:idx_segment_book_order,priority:1" json:"book_id"`
	Book         *Book     `gorm:"constraint:OnDelete:CASCADE;foreignKey:BookID;references:ID" json:"book,omitempty"`
	SegmentIndex int       `gorm:"column:segment_index;not null;index:idx_segment_book_order,priority:2" json:"segment_index"`
	SourceText     string  `gorm:"column:source_text;not null" json:"source_text"`
	TranslatedText *string `gorm:"column:translated_text" json:"translated_text,omitempty"`
	Status         string  `gorm:"column:status;not null;default:'pending';index" json:"status"`

	// Provenance facts. translation_source and from_style_memory describe the
	// pre-override origin of the current translation; the attribution columns
	// below are derived from them and written only by the attribution
	// calculator.
	TranslationSource       string   `gorm:"column:translation_source;not null;default:'model'" json:"translation_source"`
	FromStyleMemory         bool     `gorm:"column:from_style_memory;not null;default:false;index" json:"from_style_memory"`
	StyleSimilarityScore    *float64 `gorm:"column:style_similarity_score" json:"style_similarity_score,omitempty"`
	HasOverride             bool     `gorm:"column:has_override;not null;default:false" json:"has_override"`
	OverrideSimilarityScore *float64 `gorm:"column:override_similarity_score" json:"override_similarity_score,omitempty"`
	OverridePercentage      *float64 `gorm:"column:override_percentage" json:"override_percentage,omitempty"`

	OverridePct *float64 `gorm:"column:override_pct" json:"override_pct,omitempty"`
	StylePct    *float64 `gorm:"column:style_pct" json:"style_pct,omitempty"`
	ModelPct    *float64 `gorm:"column:model_pct" json:"model_pct,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Segment) TableName() string { return "segment" }
