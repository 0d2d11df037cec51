package models

// ConfidenceBand is the display classification of a confidenceScore.
type ConfidenceBand string

const (
	ConfidenceBandHigh   ConfidenceBand = "High"
	ConfidenceBandMedium ConfidenceBand = "Medium"
	ConfidenceBandLow    ConfidenceBand = "Low"
)

// Thresholds consumers use to classify confidenceScore. Part of the external
// contract: do not change without coordinating with dashboard clients.
const (
	HighConfidenceThreshold   = 80
	MediumConfidenceThreshold = 50
)

// ClassifyConfidence maps a confidence score to its display band.
func ClassifyConfidence(score int) ConfidenceBand {
	switch {
	case score >= HighConfidenceThreshold:
		return ConfidenceBandHigh
	case score >= MediumConfidenceThreshold:
		return ConfidenceBandMedium
	default:
		return ConfidenceBandLow
	}
}

// ConfidencePolicyBand is one row of the evidence-completeness policy the
// engine is instructed to follow when scoring confidence.
type ConfidencePolicyBand struct {
	Range   string
	Meaning string
}

// ConfidencePolicy returns the scoring bands in the order they are presented
// to the engine.
func ConfidencePolicy() []ConfidencePolicyBand {
	return []ConfidencePolicyBand{
		{Range: "100", Meaning: "Full repository access + full report + full prompt logs"},
		{Range: "70-80", Meaning: "One secondary source (repo or logs) missing, report strong"},
		{Range: "<50", Meaning: "Critical evidence missing"},
	}
}
