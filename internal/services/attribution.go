package services

import "math"

// SegmentFacts is the provenance evidence attribution is computed from.
// Every field is optional evidence; absence degrades to a zero-weighted
// bucket, never to an error.
type SegmentFacts struct {
	HasOverride        bool
	OverridePercentage *float64
	FromStyleMemory    bool
	StyleSimilarity    *float64
}

// Attribution is the three-way split of a segment's final text. The parts
// are always non-negative and always sum to exactly 100; model is the
// remainder bucket.
type Attribution struct {
	OverridePct float64
	StylePct    float64
	ModelPct    float64
}

// AttributionCalculator is the single authoritative implementation of the
// blend. All call sites compute through it; nothing hand-sets the three
// percentage columns.
type AttributionCalculator struct {
	sumTolerance float64
}

func NewAttributionCalculator(sumTolerance float64) *AttributionCalculator {
	if sumTolerance <= 0 {
		sumTolerance = 0.1
	}
	return &AttributionCalculator{sumTolerance: sumTolerance}
}

// Compute resolves provenance facts into percentages:
//
//  1. A full override with no finer percentage takes the whole 100.
//  2. What the override did not touch splits between style memory and the
//     base model by the originating similarity score.
//  3. Float drift beyond the tolerance is absorbed by the model bucket,
//     since override and style shares are evidence-backed.
func (c *AttributionCalculator) Compute(facts SegmentFacts) Attribution {
	overridePct := 0.0
	if facts.HasOverride {
		if facts.OverridePercentage != nil {
			overridePct = clampPct(*facts.OverridePercentage)
		} else {
			overridePct = 100
		}
	}

	remaining := 100 - overridePct
	if remaining <= 0 {
		return Attribution{OverridePct: 100, StylePct: 0, ModelPct: 0}
	}

	s := c.originatingSimilarity(facts)
	stylePct := remaining * s
	modelPct := remaining * (1 - s)

	// Model absorbs float drift so the total is exact; override and style
	// shares are evidence-backed and never adjusted.
	if math.Abs(overridePct+stylePct+modelPct-100) > c.sumTolerance {
		modelPct = 100 - overridePct - stylePct
	}
	if modelPct < 0 {
		modelPct = 0
		stylePct = 100 - overridePct
	}

	return Attribution{
		OverridePct: overridePct,
		StylePct:    stylePct,
		ModelPct:    modelPct,
	}
}

func (c *AttributionCalculator) originatingSimilarity(facts SegmentFacts) float64 {
	if facts.StyleSimilarity != nil && *facts.StyleSimilarity > 0 {
		return clampUnit(*facts.StyleSimilarity)
	}
	if facts.FromStyleMemory {
		return 1.0
	}
	return 0.0
}

func clampPct(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
