package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

const (
	digestSnippetChars = 1000
	noDigestSnippet    = "No text textSnippet available."
)

// IntegrityService cross-references analysis results to flag collusion.
// Students are matched by case-insensitive name: results sharing a name are
// treated as one student and can never be grouped together.
type IntegrityService interface {
	// CheckPlagiarism never returns an error. Group order and wording come
	// from the engine and are not stable between calls.
	CheckPlagiarism(ctx context.Context, results []models.AnalysisResult) []models.PlagiarismGroup
}

// Digest is the compact per-student summary compared across submissions.
type Digest struct {
	Name            string `json:"name"`
	Snippet         string `json:"snippet"`
	Summary         string `json:"aiSummary"`
	KeyInferences   string `json:"keyInferences"`
	GithubStructure string `json:"githubStructure"`
}

type integrityService struct {
	engine ai.Engine
	logger zerolog.Logger
}

// NewIntegrityService constructs the cross-referencer. A nil engine disables
// comparison and always yields no groups.
func NewIntegrityService(engine ai.Engine, logger zerolog.Logger) IntegrityService {
	return &integrityService{
		engine: engine,
		logger: logger.With().Str("component", "integrity_service").Logger(),
	}
}

// BuildDigests produces one digest per result, sorted by student name so the
// request does not depend on input order.
func BuildDigests(results []models.AnalysisResult) []Digest {
	digests := make([]Digest, 0, len(results))
	for _, result := range results {
		snippet := strings.TrimSpace(result.TextSnippet)
		if snippet == "" {
			snippet = noDigestSnippet
		}
		digests = append(digests, Digest{
			Name:            result.StudentName,
			Snippet:         truncateRunes(snippet, digestSnippetChars),
			Summary:         result.AIInsights.Summary,
			KeyInferences:   result.ReportAnalysis.KeyInferences,
			GithubStructure: result.CodebaseVerification.GithubStructure,
		})
	}

	sort.SliceStable(digests, func(i, j int) bool { return digests[i].Name < digests[j].Name })
	return digests
}

func (s *integrityService) CheckPlagiarism(ctx context.Context, results []models.AnalysisResult) []models.PlagiarismGroup {
	groups := []models.PlagiarismGroup{}
	if len(results) < 2 {
		return groups
	}
	if s.engine == nil {
		observability.PipelineResults().WithLabelValues("check_plagiarism", "mock").Inc()
		s.logger.Info().Int("results", len(results)).Msg("no api key configured; skipping plagiarism check")
		return groups
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/integrity")
	ctx, span := tracer.Start(ctx, "grading.check_plagiarism")
	span.SetAttributes(attribute.Int("grading.results", len(results)))
	defer span.End()

	digests := BuildDigests(results)
	payload, err := json.MarshalIndent(digests, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode digests")
		return groups
	}

	raw, err := s.engine.Generate(ctx, ai.GenerateRequest{
		Operation: "check_plagiarism",
		Parts:     []ai.ContentPart{ai.Text(plagiarismPrompt(string(payload)))},
		Schema:    responseSchema(PlagiarismGroupsSchema, "plagiarism_groups"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference_failed")
		observability.PipelineResults().WithLabelValues("check_plagiarism", "failure").Inc()
		s.logger.Error().Err(err).Msg("plagiarism inference failed")
		return groups
	}

	parsed, err := parsePlagiarismGroups(raw, digests)
	if err != nil {
		observability.PipelineResults().WithLabelValues("check_plagiarism", "failure").Inc()
		s.logger.Warn().Err(err).Msg("plagiarism response could not be parsed")
		return groups
	}

	observability.PipelineResults().WithLabelValues("check_plagiarism", "engine").Inc()
	span.SetAttributes(attribute.Int("grading.groups", len(parsed)))
	return parsed
}

func plagiarismPrompt(digests string) string {
	var b strings.Builder
	b.WriteString("You are an academic integrity officer comparing student submissions for the same assignment.\n")
	b.WriteString("Below is one digest per student: an extract of their report, a summary of their AI usage, the key inferences drawn about their understanding, and a description of their code structure.\n\n")
	b.WriteString("Flag groups of two or more students whose submissions show:\n")
	b.WriteString("- near-identical phrasing in their report snippets;\n")
	b.WriteString("- suspiciously identical key inferences;\n")
	b.WriteString("- identical code-structure descriptions.\n")
	b.WriteString("Ordinary overlap caused by the shared assignment brief is NOT collusion. Only report groups you can justify.\n\n")
	b.WriteString("STUDENT DIGESTS:\n")
	b.WriteString(digests)
	b.WriteString("\n\nReturn ONLY a JSON object of the form {\"groups\": [{\"students\": [names], \"reason\": string, \"confidence\": \"High\" | \"Medium\" | \"Low\"}]}. Use the exact student names given. Return {\"groups\": []} when nothing is suspicious.")
	return b.String()
}

// parsePlagiarismGroups keeps only groups naming at least two distinct known
// students.
func parsePlagiarismGroups(raw string, digests []Digest) ([]models.PlagiarismGroup, error) {
	value, err := decodeJSONValue(raw)
	if err != nil {
		return nil, err
	}

	var items []interface{}
	switch v := value.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		list, ok := v["groups"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("response has no groups list")
		}
		items = list
	default:
		return nil, fmt.Errorf("unexpected plagiarism payload %T", value)
	}

	known := make(map[string]string, len(digests))
	for _, digest := range digests {
		known[strings.ToLower(strings.TrimSpace(digest.Name))] = digest.Name
	}

	groups := make([]models.PlagiarismGroup, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		seen := map[string]struct{}{}
		students := []string{}
		for _, name := range coerceStringList(entry["students"]) {
			canonical, ok := known[strings.ToLower(name)]
			if !ok {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}
			students = append(students, canonical)
		}
		if len(students) < 2 {
			continue
		}

		groups = append(groups, models.PlagiarismGroup{
			Students:   students,
			Reason:     coerceString(entry["reason"], "No reason provided."),
			Confidence: coerceEnum(entry["confidence"], []string{models.PlagiarismHigh, models.PlagiarismMedium, models.PlagiarismLow}, models.PlagiarismLow),
		})
	}

	return groups, nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
