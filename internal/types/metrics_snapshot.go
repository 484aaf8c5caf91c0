package types

import (
	"time"

	"github.com/google/uuid"
)

// MetricsSnapshot is a daily rollup written by the aggregation job. One row
// per date.
type MetricsSnapshot struct {
	ID   uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Date time.Time `gorm:"column:date;type:date;not null;uniqueIndex" json:"date"`

	BLEUScore            float64 `gorm:"column:bleu_score;not null;default:0" json:"bleu_score"`
	ChrFScore            float64 `gorm:"column:chrf_score;not null;default:0" json:"chrf_score"`
	StyleSimilarityScore float64 `gorm:"column:style_similarity_score;not null;default:0" json:"style_similarity_score"`

	// Percentages on a 0-100 scale, same as the segment attribution columns.
	OverrideRate     float64 `gorm:"column:override_rate;not null;default:0" json:"override_rate"`
	AttributionRatio float64 `gorm:"column:attribution_ratio;not null;default:0" json:"attribution_ratio"`

	TotalSegments      int `gorm:"column:total_segments;not null;default:0" json:"total_segments"`
	OverriddenSegments int `gorm:"column:overridden_segments;not null;default:0" json:"overridden_segments"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (MetricsSnapshot) TableName() string { return "metrics_snapshot" }
