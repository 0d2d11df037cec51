package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func TestClassifyConfidence(t *testing.T) {
	cases := map[int]models.ConfidenceBand{
		100: models.ConfidenceBandHigh,
		80:  models.ConfidenceBandHigh,
		79:  models.ConfidenceBandMedium,
		50:  models.ConfidenceBandMedium,
		49:  models.ConfidenceBandLow,
		0:   models.ConfidenceBandLow,
	}

	for score, band := range cases {
		require.Equal(t, band, models.ClassifyConfidence(score), "score %d", score)
	}
}

func TestConfidencePolicyOrder(t *testing.T) {
	policy := models.ConfidencePolicy()

	require.Len(t, policy, 3)
	require.Equal(t, "100", policy[0].Range)
	require.Equal(t, "<50", policy[2].Range)
}

func TestSummarizeClass(t *testing.T) {
	results := []models.AnalysisResult{
		{StudentName: "Zoe", ConfidenceScore: 90, Scores: models.Scores{Overall: 45, Process: 50, AIEfficiency: 40}},
		{StudentName: "Ann", ConfidenceScore: 60, Scores: models.Scores{Overall: 92, Process: 85, AIEfficiency: 80}},
		{StudentName: "Kim", ConfidenceScore: 10, Scores: models.Scores{Overall: 30, Process: 20, AIEfficiency: 25}},
	}

	summary := models.SummarizeClass(results)

	require.Equal(t, 3, summary.Count)
	require.Equal(t, 56, summary.AverageOverall)
	require.Equal(t, 52, summary.AverageProcess)
	require.Equal(t, 48, summary.AverageAIEfficiency)
	require.Equal(t, "Ann", summary.TopPerformer)
	require.Equal(t, []string{"Kim", "Zoe"}, summary.AtRisk)
	require.Equal(t, 1, summary.ConfidenceBands[models.ConfidenceBandHigh])
	require.Equal(t, 1, summary.ConfidenceBands[models.ConfidenceBandMedium])
	require.Equal(t, 1, summary.ConfidenceBands[models.ConfidenceBandLow])
}

func TestSummarizeClassEmpty(t *testing.T) {
	summary := models.SummarizeClass(nil)

	require.Zero(t, summary.Count)
	require.Empty(t, summary.TopPerformer)
	require.NotNil(t, summary.AtRisk)
}
