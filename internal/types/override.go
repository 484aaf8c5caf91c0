package types

import (
	"time"

	"github.com/google/uuid"
)

// Override is an append-only ledger row. Editors never update or delete rows;
// the ledger is the durable audit trail and the exclusive feed for the
// retraining counter. The single lifecycle write is the claim a training run
// stamps at snapshot time, so rows committed mid-trigger stay unclaimed and
// accrue to the next cycle. No soft-delete column on purpose.
type Override struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SegmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"segment_id"`
	Segment   *Segment  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SegmentID;references:ID" json:"segment,omitempty"`

	OldTranslation *string `gorm:"column:old_translation" json:"old_translation,omitempty"`
	NewTranslation string  `gorm:"column:new_translation;not null" json:"new_translation"`

	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	User   *User      `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Engine string     `gorm:"column:engine;not null" json:"engine"`
	Reason string     `gorm:"column:reason" json:"reason"`

	// Set exactly once, inside the triggering run's transaction. NULL means
	// the correction has not been fed to any training run yet.
	ConsumedByRunID *uuid.UUID `gorm:"type:uuid;index" json:"consumed_by_run_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Override) TableName() string { return "override" }
