package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

// Fixed assistant replies.
const (
	AssistantEmptyMessageReply = "Please ask a question about your class, a specific student, or how to use the dashboard."
	AssistantMockReply         = "I'm running without an API key, so I can't analyze the class data right now. Configure an API key to enable the Grading Assistant."
	AssistantErrorReply        = "Sorry, I encountered an error while analyzing the class data. Please try again."

	maxAssistantMessageChars = 4000
)

// AssistantService answers instructor questions about a set of analyses.
type AssistantService interface {
	ChatWithGlobalAssistant(ctx context.Context, message string, results []models.AnalysisResult, assignment models.AssignmentConfig) string
}

type assistantService struct {
	engine    ai.Engine
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewAssistantService constructs the grading assistant. A nil engine yields
// the fixed mock reply.
func NewAssistantService(engine ai.Engine, logger zerolog.Logger) AssistantService {
	return &assistantService{
		engine:    engine,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "assistant_service").Logger(),
	}
}

func (s *assistantService) ChatWithGlobalAssistant(ctx context.Context, message string, results []models.AnalysisResult, assignment models.AssignmentConfig) string {
	question := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(message)))
	question = truncateRunes(question, maxAssistantMessageChars)
	if question == "" {
		return AssistantEmptyMessageReply
	}

	if s.engine == nil {
		observability.PipelineResults().WithLabelValues("assistant_chat", "mock").Inc()
		return AssistantMockReply
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/assistant")
	ctx, span := tracer.Start(ctx, "grading.assistant_chat")
	defer span.End()

	reply, err := s.engine.Generate(ctx, ai.GenerateRequest{
		Operation: "assistant_chat",
		Parts:     []ai.ContentPart{ai.Text(assistantPrompt(question, results, assignment))},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference_failed")
		observability.PipelineResults().WithLabelValues("assistant_chat", "failure").Inc()
		s.logger.Error().Err(err).Msg("assistant inference failed")
		return AssistantErrorReply
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		observability.PipelineResults().WithLabelValues("assistant_chat", "failure").Inc()
		return AssistantErrorReply
	}

	observability.PipelineResults().WithLabelValues("assistant_chat", "engine").Inc()
	return reply
}

func assistantPrompt(question string, results []models.AnalysisResult, assignment models.AssignmentConfig) string {
	summary := models.SummarizeClass(results)

	title := assignment.Title
	if strings.TrimSpace(title) == "" {
		title = "the assignment"
	}

	var b strings.Builder
	b.WriteString("You are the Grading Assistant for a university instructor. Answer concisely in Markdown, citing student names and scores from the data below. Never invent students or scores.\n\n")
	b.WriteString(fmt.Sprintf("ASSIGNMENT: %s\nCLASS CONTEXT: %s\n\n", title, assignment.ClassContext))

	b.WriteString("CLASS SUMMARY:\n")
	b.WriteString(fmt.Sprintf("- Submissions analyzed: %d\n", summary.Count))
	b.WriteString(fmt.Sprintf("- Class average (overall): %d/100\n", summary.AverageOverall))
	b.WriteString(fmt.Sprintf("- Average process score: %d/100\n", summary.AverageProcess))
	b.WriteString(fmt.Sprintf("- Average AI efficiency: %d/100\n", summary.AverageAIEfficiency))
	if summary.TopPerformer != "" {
		b.WriteString("- Top performer: " + summary.TopPerformer + "\n")
	}
	if len(summary.AtRisk) > 0 {
		b.WriteString(fmt.Sprintf("- At risk (overall < %d): %s\n", models.AtRiskOverallThreshold, strings.Join(summary.AtRisk, ", ")))
	}
	b.WriteString(fmt.Sprintf("- Confidence bands: High %d, Medium %d, Low %d\n\n",
		summary.ConfidenceBands[models.ConfidenceBandHigh],
		summary.ConfidenceBands[models.ConfidenceBandMedium],
		summary.ConfidenceBands[models.ConfidenceBandLow]))

	b.WriteString("STUDENTS:\n")
	sorted := append([]models.AnalysisResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StudentName < sorted[j].StudentName })
	for _, result := range sorted {
		b.WriteString(fmt.Sprintf("- %s: overall %d, product %d, process %d, AI efficiency %d, confidence %d (%s), credibility %s. AI usage: %s. Feedback: %s\n",
			result.StudentName,
			result.Scores.Overall,
			result.Scores.Product,
			result.Scores.Process,
			result.Scores.AIEfficiency,
			result.ConfidenceScore,
			models.ClassifyConfidence(result.ConfidenceScore),
			result.CodebaseVerification.OverallCredibility,
			result.AIInsights.Summary,
			result.Feedback,
		))
	}

	b.WriteString("\nDASHBOARD HELP: The dashboard lists every analyzed student with score charts. Selecting a student opens the rubric breakdown, codebase verification and report analysis. The integrity check compares all submissions for collusion. Confidence badges: High >= 80, Medium 50-79, Low < 50.\n\n")
	b.WriteString("INSTRUCTOR QUESTION:\n")
	b.WriteString(question)

	return b.String()
}
