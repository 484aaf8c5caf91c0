package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EngineManual  = "manual"
	EngineChatGPT = "chatgpt"
	EngineGemini  = "gemini"
)

// StyleMemoryEntry is an approved source/translation pair. Entries are
// immutable after creation; a later correction produces a new entry. The
// authoritative vector lives in the vector index keyed by this row's ID; the
// embedding column is an audit copy used for re-indexing after a dimension
// migration.
type StyleMemoryEntry struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SegmentID *uuid.UUID `gorm:"type:uuid;index" json:"segment_id,omitempty"`
	Segment   *Segment   `gorm:"constraint:OnDelete:SET NULL;foreignKey:SegmentID;references:ID" json:"segment,omitempty"`

	SourceText           string         `gorm:"column:source_text;not null;index" json:"source_text"`
	PreferredTranslation string         `gorm:"column:preferred_translation;not null" json:"preferred_translation"`
	Embedding            datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`
	EmbeddingDim         int            `gorm:"column:embedding_dim;not null" json:"embedding_dim"`

	ApprovedBy *uuid.UUID `gorm:"type:uuid" json:"approved_by,omitempty"`
	Approver   *User      `gorm:"foreignKey:ApprovedBy;references:ID" json:"approver,omitempty"`
	ApprovedAt time.Time  `gorm:"column:approved_at;not null;default:now();index" json:"approved_at"`
	Engine     string     `gorm:"column:engine" json:"engine"`

	// Similarity between the approved translation and the translation it
	// replaced, recorded at approval time.
	SimilarityScore *float64 `gorm:"column:similarity_score" json:"similarity_score,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (StyleMemoryEntry) TableName() string { return "style_memory_entry" }
