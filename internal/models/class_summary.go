package models

import (
	"math"
	"sort"
)

// AtRiskOverallThreshold marks students whose overall score falls below it.
const AtRiskOverallThreshold = 50

// ClassSummary aggregates a set of analysis results for the grading assistant.
type ClassSummary struct {
	Count               int                    `json:"count"`
	AverageOverall      int                    `json:"averageOverall"`
	AverageProcess      int                    `json:"averageProcess"`
	AverageAIEfficiency int                    `json:"averageAiEfficiency"`
	TopPerformer        string                 `json:"topPerformer"`
	AtRisk              []string               `json:"atRisk"`
	ConfidenceBands     map[ConfidenceBand]int `json:"confidenceBands"`
}

// SummarizeClass computes deterministic class-level statistics.
func SummarizeClass(results []AnalysisResult) ClassSummary {
	summary := ClassSummary{
		AtRisk:          []string{},
		ConfidenceBands: map[ConfidenceBand]int{},
	}
	if len(results) == 0 {
		return summary
	}

	var overall, process, efficiency float64
	best := -1
	for _, result := range results {
		overall += float64(result.Scores.Overall)
		process += float64(result.Scores.Process)
		efficiency += float64(result.Scores.AIEfficiency)

		if result.Scores.Overall > best {
			best = result.Scores.Overall
			summary.TopPerformer = result.StudentName
		}
		if result.Scores.Overall < AtRiskOverallThreshold {
			summary.AtRisk = append(summary.AtRisk, result.StudentName)
		}
		summary.ConfidenceBands[ClassifyConfidence(result.ConfidenceScore)]++
	}

	count := float64(len(results))
	summary.Count = len(results)
	summary.AverageOverall = int(math.Round(overall / count))
	summary.AverageProcess = int(math.Round(process / count))
	summary.AverageAIEfficiency = int(math.Round(efficiency / count))
	sort.Strings(summary.AtRisk)

	return summary
}
