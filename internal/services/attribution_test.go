package services

import (
	"math"
	"testing"
)

func fp(v float64) *float64 { return &v }

func TestComputeAttributionDecisionTable(t *testing.T) {
	calc := NewAttributionCalculator(0.1)

	cases := []struct {
		name         string
		facts        SegmentFacts
		wantOverride float64
		wantStyle    float64
		wantModel    float64
	}{
		{
			name:         "pure model output",
			facts:        SegmentFacts{},
			wantOverride: 0, wantStyle: 0, wantModel: 100,
		},
		{
			name:         "style memory hit at 0.9",
			facts:        SegmentFacts{FromStyleMemory: true, StyleSimilarity: fp(0.9)},
			wantOverride: 0, wantStyle: 90, wantModel: 10,
		},
		{
			name:         "style memory hit with missing score treated as exact",
			facts:        SegmentFacts{FromStyleMemory: true},
			wantOverride: 0, wantStyle: 100, wantModel: 0,
		},
		{
			name:         "full override is terminal regardless of prior style score",
			facts:        SegmentFacts{HasOverride: true, StyleSimilarity: fp(0.6)},
			wantOverride: 100, wantStyle: 0, wantModel: 0,
		},
		{
			name: "partial override splits the remainder by prior similarity",
			facts: SegmentFacts{
				HasOverride:        true,
				OverridePercentage: fp(40),
				FromStyleMemory:    true,
				StyleSimilarity:    fp(0.5),
			},
			wantOverride: 40, wantStyle: 30, wantModel: 30,
		},
		{
			name: "partial override of a pure model translation",
			facts: SegmentFacts{
				HasOverride:        true,
				OverridePercentage: fp(25),
			},
			wantOverride: 25, wantStyle: 0, wantModel: 75,
		},
		{
			name:         "zero similarity score is ignored in favor of the memory flag",
			facts:        SegmentFacts{FromStyleMemory: true, StyleSimilarity: fp(0)},
			wantOverride: 0, wantStyle: 100, wantModel: 0,
		},
		{
			name:         "negative score degrades to model bucket",
			facts:        SegmentFacts{StyleSimilarity: fp(-0.3)},
			wantOverride: 0, wantStyle: 0, wantModel: 100,
		},
		{
			name:         "out of range override percentage is clamped",
			facts:        SegmentFacts{HasOverride: true, OverridePercentage: fp(140)},
			wantOverride: 100, wantStyle: 0, wantModel: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.Compute(tc.facts)
			if math.Abs(got.OverridePct-tc.wantOverride) > 1e-9 {
				t.Fatalf("override_pct = %g, want %g", got.OverridePct, tc.wantOverride)
			}
			if math.Abs(got.StylePct-tc.wantStyle) > 1e-9 {
				t.Fatalf("style_pct = %g, want %g", got.StylePct, tc.wantStyle)
			}
			if math.Abs(got.ModelPct-tc.wantModel) > 1e-9 {
				t.Fatalf("model_pct = %g, want %g", got.ModelPct, tc.wantModel)
			}
		})
	}
}

func TestComputeAttributionAlwaysSumsTo100(t *testing.T) {
	calc := NewAttributionCalculator(0.1)

	scores := []*float64{nil, fp(0), fp(0.1), fp(0.33), fp(0.5), fp(0.80000001), fp(0.99), fp(1)}
	overridePcts := []*float64{nil, fp(0), fp(12.5), fp(33.3), fp(99.9), fp(100)}

	for _, hasOverride := range []bool{false, true} {
		for _, fromMemory := range []bool{false, true} {
			for _, score := range scores {
				facts := SegmentFacts{
					HasOverride:     hasOverride,
					FromStyleMemory: fromMemory,
					StyleSimilarity: score,
				}
				pcts := []*float64{nil}
				if hasOverride {
					pcts = overridePcts
				}
				for _, pct := range pcts {
					facts.OverridePercentage = pct
					got := calc.Compute(facts)
					sum := got.OverridePct + got.StylePct + got.ModelPct
					if math.Abs(sum-100) > 0.1 {
						t.Fatalf("sum = %g for facts %+v", sum, facts)
					}
					if got.OverridePct < 0 || got.StylePct < 0 || got.ModelPct < 0 {
						t.Fatalf("negative bucket for facts %+v: %+v", facts, got)
					}
				}
			}
		}
	}
}

func TestComputeAttributionFullOverrideIsTerminal(t *testing.T) {
	calc := NewAttributionCalculator(0.1)
	got := calc.Compute(SegmentFacts{
		HasOverride:     true,
		FromStyleMemory: true,
		StyleSimilarity: fp(0.95),
	})
	if got.OverridePct != 100 || got.StylePct != 0 || got.ModelPct != 0 {
		t.Fatalf("got %+v, want 100/0/0", got)
	}
}
