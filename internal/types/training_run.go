package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TrainingRunStatusTraining  = "training"
	TrainingRunStatusCompleted = "completed"
	TrainingRunStatusFailed    = "failed"
)

type TrainingRun struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Version   string    `gorm:"column:version;not null;index" json:"version"`
	ModelPath string    `gorm:"column:model_path" json:"model_path"`

	TrainSamples      int `gorm:"column:train_samples;not null;default:0" json:"train_samples"`
	ValidationSamples int `gorm:"column:validation_samples;not null;default:0" json:"validation_samples"`

	BLEUScore            *float64 `gorm:"column:bleu_score" json:"bleu_score,omitempty"`
	ChrFScore            *float64 `gorm:"column:chrf_score" json:"chrf_score,omitempty"`
	StyleSimilarityScore *float64 `gorm:"column:style_similarity_score" json:"style_similarity_score,omitempty"`

	// Status only moves forward: training -> completed|failed.
	Status string `gorm:"column:status;not null;default:'training';index" json:"status"`

	// SnapshotAt is the moment the ledger was snapshotted for this run's
	// training data. The pending-corrections counter resets here, not at
	// completion, so overrides arriving during training accrue to the next
	// cycle.
	SnapshotAt time.Time `gorm:"column:snapshot_at;not null;index" json:"snapshot_at"`

	PromotionEligible bool `gorm:"column:promotion_eligible;not null;default:false" json:"promotion_eligible"`
	Promoted          bool `gorm:"column:promoted;not null;default:false;index" json:"promoted"`

	StartedAt   time.Time      `gorm:"column:started_at;not null;default:now();index" json:"started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Notes       string         `gorm:"column:notes" json:"notes"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TrainingRun) TableName() string { return "training_run" }
