package service

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
	"github.com/noah-isme/gema-grading-api/pkg/github"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type stubEngine struct {
	mu       sync.Mutex
	response string
	err      error
	requests []ai.GenerateRequest
}

func (s *stubEngine) Generate(_ context.Context, req ai.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubEngine) lastRequest() ai.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return ai.GenerateRequest{}
	}
	return s.requests[len(s.requests)-1]
}

type stubCollector struct {
	evidence github.Evidence
	calls    int
	urls     []string
}

func (s *stubCollector) Collect(_ context.Context, repoURL string) github.Evidence {
	s.calls++
	s.urls = append(s.urls, repoURL)
	return s.evidence
}

type recordingPublisher struct {
	events []AnalysisCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishAnalysisCompleted(_ context.Context, event AnalysisCompletedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func textOf(parts []ai.ContentPart) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if text, ok := part.(ai.TextPart); ok {
			out = append(out, text.Text)
			continue
		}
		out = append(out, "<binary>")
	}
	return out
}

func sampleResult(name string, overall, confidence int) models.AnalysisResult {
	result := FillAnalysisDefaults(map[string]interface{}{}, name)
	result.Scores = models.Scores{Product: overall, Process: overall, AIEfficiency: overall, Overall: overall}
	result.ConfidenceScore = confidence
	result.TextSnippet = "Report excerpt written by " + name
	return result
}

const validAnalysisJSON = `{
  "confidenceScore": 92,
  "textSnippet": "We modelled the queue as a ring buffer.",
  "scores": {"product": 85, "process": 90, "aiEfficiency": 70, "overall": 84},
  "rubricBreakdown": [
    {"criteria": "Simulation", "score": 8, "max": 10, "comment": "Solid."}
  ],
  "aiInsights": {"summary": "Targeted prompts.", "efficiencyBand": "High", "promptQuality": "Good"},
  "codebaseVerification": {
    "githubStructure": "Clear src layout.",
    "scriptQuality": "Readable.",
    "readmeCredibility": "Matches code.",
    "overallCredibility": "High",
    "fileAnalyses": [{"fileName": "main.py", "critique": "Well factored.", "rating": "Good"}]
  },
  "reportAnalysis": {
    "structureQuality": "Well organised.",
    "visualEvidence": "Two diagrams.",
    "criteriaMet": ["Explains design"],
    "criteriaMissed": [],
    "keyInferences": "Understands buffering.",
    "additionalEffort": "Extra benchmarks."
  },
  "feedback": "Strong work."
}`
