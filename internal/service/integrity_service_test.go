package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func TestCheckPlagiarismNeedsTwoResults(t *testing.T) {
	engine := &stubEngine{response: `{"groups": []}`}
	svc := NewIntegrityService(engine, testLogger())

	require.Empty(t, svc.CheckPlagiarism(context.Background(), nil))
	require.Empty(t, svc.CheckPlagiarism(context.Background(), []models.AnalysisResult{sampleResult("Alice", 80, 90)}))
	require.Zero(t, engine.calls())
}

func TestCheckPlagiarismMockModeReturnsNoGroups(t *testing.T) {
	svc := NewIntegrityService(nil, testLogger())

	groups := svc.CheckPlagiarism(context.Background(), []models.AnalysisResult{sampleResult("A", 70, 70), sampleResult("B", 70, 70)})

	require.NotNil(t, groups)
	require.Empty(t, groups)
}

func TestCheckPlagiarismReturnsEngineGroups(t *testing.T) {
	engine := &stubEngine{response: `{"groups": [{"students": ["Alice", "Bob"], "reason": "Identical key inferences.", "confidence": "High"}]}`}
	svc := NewIntegrityService(engine, testLogger())

	groups := svc.CheckPlagiarism(context.Background(), []models.AnalysisResult{sampleResult("Bob", 60, 70), sampleResult("Alice", 80, 90)})

	require.Len(t, groups, 1)
	require.ElementsMatch(t, []string{"Alice", "Bob"}, groups[0].Students)
	require.Equal(t, models.PlagiarismHigh, groups[0].Confidence)
	require.Equal(t, "Identical key inferences.", groups[0].Reason)

	req := engine.lastRequest()
	require.Equal(t, "check_plagiarism", req.Operation)
	require.NotNil(t, req.Schema)
	prompt := strings.Join(textOf(req.Parts), "\n")
	require.Less(t, strings.Index(prompt, `"name": "Alice"`), strings.Index(prompt, `"name": "Bob"`))
}

func TestCheckPlagiarismDropsUnknownAndSingletonGroups(t *testing.T) {
	engine := &stubEngine{response: "```json\n" + `{"groups": [
	  {"students": ["alice", "Mallory"], "reason": "Same phrasing.", "confidence": "Medium"},
	  {"students": ["Alice", "ALICE"], "reason": "dup", "confidence": "High"},
	  {"students": ["Alice", "Bob", "Carol"], "confidence": "certain"}
	]}` + "\n```"}
	svc := NewIntegrityService(engine, testLogger())

	results := []models.AnalysisResult{sampleResult("Alice", 80, 90), sampleResult("Bob", 60, 70), sampleResult("Carol", 50, 40)}
	groups := svc.CheckPlagiarism(context.Background(), results)

	require.Len(t, groups, 1)
	require.Equal(t, []string{"Alice", "Bob", "Carol"}, groups[0].Students)
	require.Equal(t, models.PlagiarismLow, groups[0].Confidence)
	require.Equal(t, "No reason provided.", groups[0].Reason)
}

func TestCheckPlagiarismFailuresYieldEmpty(t *testing.T) {
	results := []models.AnalysisResult{sampleResult("A", 70, 70), sampleResult("B", 70, 70)}

	for name, engine := range map[string]*stubEngine{
		"engine error": {err: errors.New("quota exceeded")},
		"garbage":      {response: "I cannot help with that"},
		"wrong shape":  {response: `{"verdict": "fine"}`},
	} {
		t.Run(name, func(t *testing.T) {
			groups := NewIntegrityService(engine, testLogger()).CheckPlagiarism(context.Background(), results)
			require.NotNil(t, groups)
			require.Empty(t, groups)
		})
	}
}

func TestBuildDigestsTruncatesAndSorts(t *testing.T) {
	long := sampleResult("Zed", 50, 50)
	long.TextSnippet = strings.Repeat("é", digestSnippetChars+50)
	blank := sampleResult("Amy", 50, 50)
	blank.TextSnippet = "  "

	digests := BuildDigests([]models.AnalysisResult{long, blank})

	require.Len(t, digests, 2)
	require.Equal(t, "Amy", digests[0].Name)
	require.Equal(t, noDigestSnippet, digests[0].Snippet)
	require.Equal(t, digestSnippetChars, len([]rune(digests[1].Snippet)))
}
