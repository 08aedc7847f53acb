// Package pipeline sequences one context ingestion end to end: classify,
// extract, merge into the graph, enrich, filter, gate, execute.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Band is the confidence gate's routing decision.
type Band string

const (
	BandAutoApply   Band = "AUTO_APPLY"
	BandAskApproval Band = "ASK_APPROVAL"
	BandClarify     Band = "CLARIFY"
	BandStoreOnly   Band = "STORE_ONLY"
	BandAnswer      Band = "ANSWER"
)

// Band boundaries on aggregate confidence.
const (
	autoApplyThreshold   = 0.8
	askApprovalThreshold = 0.5
)

// Confidence factor names.
const (
	FactorExtraction = "extraction_quality"
	FactorRelevance  = "relevance"
	FactorEnrichment = "enrichment_match"
)

// factorWeights is the blend for the aggregate confidence. Absent factors
// drop out and the remaining weights renormalize.
var factorWeights = map[string]float64{
	FactorExtraction: 0.40,
	FactorRelevance:  0.35,
	FactorEnrichment: 0.25,
}

// GateInput is everything the confidence gate may consider.
type GateInput struct {
	// Factors maps factor names to scores in [0,1]. Unknown names are
	// ignored; absent names renormalize the remaining weights.
	Factors map[string]float64
	// Actionable reports whether any operation exists to apply or approve.
	// Without one, low confidence routes to STORE_ONLY instead of CLARIFY.
	Actionable bool
}

// GateDecision is the gate's output: the band plus the full factor
// breakdown for the reasoning trace.
type GateDecision struct {
	Band       Band
	Confidence float64
	Factors    map[string]float64
}

// Gate maps aggregate confidence to an action band. Pure function: the
// same factors always produce the same decision.
func Gate(in GateInput) GateDecision {
	var weighted, totalWeight float64
	factors := map[string]float64{}

	for name, weight := range factorWeights {
		value, ok := in.Factors[name]
		if !ok {
			continue
		}
		value = clamp01(value)
		factors[name] = value
		weighted += weight * value
		totalWeight += weight
	}

	confidence := 0.0
	if totalWeight > 0 {
		confidence = weighted / totalWeight
	}

	band := BandStoreOnly
	switch {
	case confidence > autoApplyThreshold:
		band = BandAutoApply
	case confidence >= askApprovalThreshold:
		band = BandAskApproval
	case in.Actionable:
		band = BandClarify
	}

	if band == BandAutoApply || band == BandAskApproval {
		if !in.Actionable {
			band = BandStoreOnly
		}
	}

	return GateDecision{Band: band, Confidence: confidence, Factors: factors}
}

// Describe renders the factor breakdown as one trace line.
func (d GateDecision) Describe() string {
	names := make([]string, 0, len(d.Factors))
	for name := range d.Factors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.2f", name, d.Factors[name]))
	}
	return fmt.Sprintf("confidence %.2f (%s) -> %s", d.Confidence, strings.Join(parts, ", "), d.Band)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
