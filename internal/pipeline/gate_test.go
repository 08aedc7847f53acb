package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_Bands(t *testing.T) {
	t.Run("aggregate above 0.8 auto-applies", func(t *testing.T) {
		d := Gate(GateInput{
			Factors: map[string]float64{
				FactorExtraction: 0.85,
				FactorRelevance:  0.85,
				FactorEnrichment: 0.85,
			},
			Actionable: true,
		})
		assert.Equal(t, BandAutoApply, d.Band)
		assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	})

	t.Run("aggregate between 0.5 and 0.8 asks for approval", func(t *testing.T) {
		d := Gate(GateInput{
			Factors: map[string]float64{
				FactorExtraction: 0.6,
				FactorRelevance:  0.6,
				FactorEnrichment: 0.6,
			},
			Actionable: true,
		})
		assert.Equal(t, BandAskApproval, d.Band)
		assert.InDelta(t, 0.6, d.Confidence, 1e-9)
	})

	t.Run("low confidence with actionable ops clarifies", func(t *testing.T) {
		d := Gate(GateInput{
			Factors:    map[string]float64{FactorExtraction: 0.3, FactorRelevance: 0.2},
			Actionable: true,
		})
		assert.Equal(t, BandClarify, d.Band)
	})

	t.Run("low confidence without actionable ops stores only", func(t *testing.T) {
		d := Gate(GateInput{
			Factors:    map[string]float64{FactorExtraction: 0.3},
			Actionable: false,
		})
		assert.Equal(t, BandStoreOnly, d.Band)
	})

	t.Run("high confidence without actionable ops stores only", func(t *testing.T) {
		d := Gate(GateInput{
			Factors:    map[string]float64{FactorExtraction: 0.95},
			Actionable: false,
		})
		assert.Equal(t, BandStoreOnly, d.Band)
	})
}

func TestGate_WeightRenormalization(t *testing.T) {
	t.Run("missing enrichment factor renormalizes", func(t *testing.T) {
		d := Gate(GateInput{
			Factors: map[string]float64{
				FactorExtraction: 1.0,
				FactorRelevance:  0.5,
			},
			Actionable: true,
		})
		// (0.40*1.0 + 0.35*0.5) / 0.75
		assert.InDelta(t, 0.575/0.75, d.Confidence, 1e-9)
	})

	t.Run("single factor stands alone", func(t *testing.T) {
		d := Gate(GateInput{
			Factors:    map[string]float64{FactorRelevance: 0.9},
			Actionable: true,
		})
		assert.InDelta(t, 0.9, d.Confidence, 1e-9)
		assert.Equal(t, BandAutoApply, d.Band)
	})

	t.Run("no factors means zero confidence", func(t *testing.T) {
		d := Gate(GateInput{Actionable: false})
		assert.Zero(t, d.Confidence)
		assert.Equal(t, BandStoreOnly, d.Band)
	})

	t.Run("unknown factor names are ignored", func(t *testing.T) {
		d := Gate(GateInput{
			Factors:    map[string]float64{"vibes": 1.0, FactorRelevance: 0.6},
			Actionable: true,
		})
		assert.InDelta(t, 0.6, d.Confidence, 1e-9)
	})

	t.Run("out-of-range factors clamp", func(t *testing.T) {
		d := Gate(GateInput{
			Factors:    map[string]float64{FactorExtraction: 1.7, FactorRelevance: -0.4},
			Actionable: true,
		})
		// (0.40*1.0 + 0.35*0.0) / 0.75
		assert.InDelta(t, 0.4/0.75, d.Confidence, 1e-9)
	})
}

func TestGate_IsPure(t *testing.T) {
	in := GateInput{
		Factors: map[string]float64{
			FactorExtraction: 0.7,
			FactorRelevance:  0.8,
			FactorEnrichment: 0.4,
		},
		Actionable: true,
	}

	first := Gate(in)
	second := Gate(in)
	assert.Equal(t, first, second)
}

func TestGateDecision_Describe(t *testing.T) {
	d := Gate(GateInput{
		Factors:    map[string]float64{FactorExtraction: 0.9, FactorRelevance: 1.0},
		Actionable: true,
	})

	line := d.Describe()
	assert.Contains(t, line, "extraction_quality=0.90")
	assert.Contains(t, line, "relevance=1.00")
	assert.Contains(t, line, string(BandAutoApply))
}
