package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

// AnalysisFailedMarker fills every text field of a failure result.
const AnalysisFailedMarker = "Analysis Failed."

var (
	// MockLearningOutcomes is returned when no credential is configured.
	MockLearningOutcomes = []string{"Understand core concepts", "Implement basic features", "Debug effectively"}
	// FailedLearningOutcomes is returned when the engine call or parse fails.
	FailedLearningOutcomes = []string{"Analysis Failed: Default Outcome 1", "Analysis Failed: Default Outcome 2"}
)

// GradingService runs the single-submission grading pipeline.
type GradingService interface {
	AnalyzeSubmission(ctx context.Context, assignment models.AssignmentConfig, submission models.StudentSubmission) models.AnalysisResult
	GenerateLearningOutcomes(ctx context.Context, description string, assignmentFile *models.Attachment) []string
}

type gradingService struct {
	engine     ai.Engine
	evidence   EvidenceService
	normalizer *ResponseNormalizer
	publisher  AnalysisPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGradingService constructs the grading pipeline. A nil engine puts the
// service in mock mode. publisher may be nil.
func NewGradingService(engine ai.Engine, evidence EvidenceService, publisher AnalysisPublisher, logger zerolog.Logger) GradingService {
	return &gradingService{
		engine:     engine,
		evidence:   evidence,
		normalizer: NewResponseNormalizer(logger),
		publisher:  publisher,
		logger:     logger.With().Str("component", "grading_service").Logger(),
		now:        time.Now,
	}
}

func (s *gradingService) AnalyzeSubmission(ctx context.Context, assignment models.AssignmentConfig, submission models.StudentSubmission) models.AnalysisResult {
	if s.engine == nil {
		observability.PipelineResults().WithLabelValues("analyze_submission", "mock").Inc()
		s.logger.Info().Str("student", submission.StudentName).Msg("no api key configured; returning mock analysis")
		return MockAnalysisResult(submission.StudentName)
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.analyze_submission")
	defer span.End()

	evidence := s.evidence.Collect(ctx, submission.RepoURL)
	span.SetAttributes(attribute.String("grading.evidence_status", string(evidence.Status)))

	prompt := CompilePrompt(assignment, submission, evidence.Text)
	span.SetAttributes(attribute.Bool("grading.retrieval", prompt.EnableRetrieval))

	raw, err := s.engine.Generate(ctx, prompt.Request("analyze_submission", responseSchema(AnalysisResultSchema, "analysis_result")))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference_failed")
		observability.PipelineResults().WithLabelValues("analyze_submission", "failure").Inc()
		s.logger.Error().Err(err).Str("student", submission.StudentName).Msg("analysis inference failed")
		return FailedAnalysisResult(submission.StudentName, err)
	}

	result, parsed := s.normalizer.Normalize(raw, submission.StudentName)
	observability.PipelineResults().WithLabelValues("analyze_submission", "engine").Inc()
	span.SetAttributes(
		attribute.Int("grading.overall", result.Scores.Overall),
		attribute.Int("grading.confidence", result.ConfidenceScore),
	)

	if !parsed {
		span.SetStatus(codes.Error, "unparsable_response")
		return result
	}

	if s.publisher != nil {
		event := AnalysisCompletedEvent{
			StudentName:     result.StudentName,
			Overall:         result.Scores.Overall,
			ConfidenceScore: result.ConfidenceScore,
			ConfidenceBand:  models.ClassifyConfidence(result.ConfidenceScore),
			AnalyzedAt:      s.now().UTC(),
		}
		if err := s.publisher.PublishAnalysisCompleted(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("student", result.StudentName).Msg("failed to publish analysis event")
		}
	}

	return result
}

func (s *gradingService) GenerateLearningOutcomes(ctx context.Context, description string, assignmentFile *models.Attachment) []string {
	if s.engine == nil {
		observability.PipelineResults().WithLabelValues("learning_outcomes", "mock").Inc()
		return append([]string(nil), MockLearningOutcomes...)
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.learning_outcomes")
	defer span.End()

	parts := make([]ai.ContentPart, 0, 2)
	prompt := "Given the assignment description"
	if assignmentFile != nil {
		parts = append(parts, InlinePart(*assignmentFile))
		prompt += " (and the attached document)"
	}
	prompt += fmt.Sprintf(", generate a list of 3-5 short, specific learning outcomes.\n\nAssignment Text: %q\n\nReturn ONLY a JSON object of the form {\"outcomes\": [\"...\"]}.", description)
	parts = append(parts, ai.Text(prompt))

	raw, err := s.engine.Generate(ctx, ai.GenerateRequest{
		Operation: "learning_outcomes",
		Parts:     parts,
		Schema:    responseSchema(LearningOutcomesSchema, "learning_outcomes"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference_failed")
		observability.PipelineResults().WithLabelValues("learning_outcomes", "failure").Inc()
		s.logger.Error().Err(err).Msg("learning outcome generation failed")
		return append([]string(nil), FailedLearningOutcomes...)
	}

	outcomes, err := parseLearningOutcomes(raw)
	if err != nil {
		observability.PipelineResults().WithLabelValues("learning_outcomes", "failure").Inc()
		s.logger.Warn().Err(err).Msg("learning outcome response could not be parsed")
		return append([]string(nil), FailedLearningOutcomes...)
	}

	observability.PipelineResults().WithLabelValues("learning_outcomes", "engine").Inc()
	return outcomes
}

func parseLearningOutcomes(raw string) ([]string, error) {
	value, err := decodeJSONValue(raw)
	if err != nil {
		return nil, err
	}

	var items []interface{}
	switch v := value.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		list, ok := v["outcomes"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("response has no outcomes list")
		}
		items = list
	default:
		return nil, fmt.Errorf("unexpected outcomes payload %T", value)
	}

	outcomes := coerceStringList(items)
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("response contained no outcomes")
	}
	return outcomes, nil
}

// decodeJSONValue applies ExtractJSON and falls back to the outermost
// brackets for array payloads.
func decodeJSONValue(raw string) (interface{}, error) {
	var value interface{}
	candidate := ExtractJSON(raw)
	err := json.Unmarshal([]byte(candidate), &value)
	if err == nil {
		return value, nil
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		if arrErr := json.Unmarshal([]byte(raw[start:end+1]), &value); arrErr == nil {
			return value, nil
		}
	}

	return nil, fmt.Errorf("decode engine json: %w", err)
}

// MockAnalysisResult is the deterministic result used when no credential is
// configured.
func MockAnalysisResult(studentName string) models.AnalysisResult {
	return models.AnalysisResult{
		StudentName:     studentName,
		ConfidenceScore: 0,
		TextSnippet:     "Mock analysis generated (No API Key). No report text was analyzed.",
		Scores:          models.Scores{Product: 75, Process: 70, AIEfficiency: 60, Overall: 70},
		RubricBreakdown: []models.RubricItem{
			{Criteria: "System Simulation", Score: 7, Max: 10, Comment: "Mock analysis generated (No API Key)."},
		},
		AIInsights: models.AIInsights{
			Summary:        "Unable to analyze prompt logs without API key.",
			EfficiencyBand: "Unknown",
			PromptQuality:  "Unknown",
		},
		CodebaseVerification: models.CodebaseVerification{
			GithubStructure:    "Mock: Unable to verify GitHub without API Key.",
			ScriptQuality:      "Mock: Unable to verify scripts.",
			ReadmeCredibility:  "Mock: Unknown.",
			OverallCredibility: models.CredibilityMedium,
			FileAnalyses: []models.FileAnalysis{
				{FileName: "README.md", Critique: "Mock: file contents were not analyzed.", Rating: models.RatingFair},
			},
		},
		ReportAnalysis: models.ReportAnalysis{
			StructureQuality: "Mock Analysis.",
			VisualEvidence:   "Mock Analysis.",
			CriteriaMet:      []string{"Mock Criterion 1"},
			CriteriaMissed:   []string{"Mock Criterion 2"},
			KeyInferences:    "Mock Analysis.",
			AdditionalEffort: "Mock Analysis.",
		},
		Feedback: "Please provide a valid API Key to get real AI insights.",
	}
}

// FailedAnalysisResult is returned when the inference call itself fails.
func FailedAnalysisResult(studentName string, cause error) models.AnalysisResult {
	feedback := "An error occurred during analysis. Please check the inputs and try again."
	if cause != nil {
		feedback = fmt.Sprintf("An error occurred during analysis (%v). Please check the inputs and try again.", cause)
	}

	return models.AnalysisResult{
		StudentName:     studentName,
		ConfidenceScore: 0,
		TextSnippet:     AnalysisFailedMarker,
		Scores:          models.Scores{},
		RubricBreakdown: []models.RubricItem{},
		AIInsights: models.AIInsights{
			Summary:        AnalysisFailedMarker,
			EfficiencyBand: AnalysisFailedMarker,
			PromptQuality:  AnalysisFailedMarker,
		},
		CodebaseVerification: models.CodebaseVerification{
			GithubStructure:    AnalysisFailedMarker,
			ScriptQuality:      AnalysisFailedMarker,
			ReadmeCredibility:  AnalysisFailedMarker,
			OverallCredibility: models.CredibilityLow,
			FileAnalyses:       []models.FileAnalysis{},
		},
		ReportAnalysis: models.ReportAnalysis{
			StructureQuality: AnalysisFailedMarker,
			VisualEvidence:   AnalysisFailedMarker,
			CriteriaMet:      []string{},
			CriteriaMissed:   []string{},
			KeyInferences:    AnalysisFailedMarker,
			AdditionalEffort: AnalysisFailedMarker,
		},
		Feedback: feedback,
	}
}
