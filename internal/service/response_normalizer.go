package service

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Fallback texts used by the normalizer.
const (
	ParseFailureFeedback   = "Error parsing AI response. Please try again."
	IncompleteFeedback     = "Analysis could not be completed successfully."
	NoSnippetText          = "No text available."
	AnalysisFailedText     = "Analysis failed."
	UnknownText            = "Unknown."
	UnknownFileName        = "Unknown file"
	NoCritiqueText         = "No critique provided."
	defaultRubricMax       = 10
	maxRubricMax           = 1000
	defaultConfidenceScore = 50
)

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```(?i:json)\\s*(.*?)```")
	fencedBlock     = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*\\s*(.*?)```")
)

// ExtractJSON locates the JSON document inside free engine text. It prefers a
// fenced json block, then any fenced block, then the outermost braces. Empty
// input yields "{}"; text without braces is returned unchanged so the caller's
// parse fails loudly.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "{}"
	}

	if match := fencedJSONBlock.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	if match := fencedBlock.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}

	return text
}

type stringDefault struct {
	path     string
	fallback string
	set      func(*models.AnalysisResult, string)
}

type scoreDefault struct {
	path     string
	fallback int
	set      func(*models.AnalysisResult, int)
}

type listDefault struct {
	path string
	set  func(*models.AnalysisResult, []string)
}

// The default-fill table. Every AnalysisResult field except studentName,
// rubricBreakdown and fileAnalyses is listed here.
var (
	scoreDefaults = []scoreDefault{
		{"confidenceScore", defaultConfidenceScore, func(r *models.AnalysisResult, v int) { r.ConfidenceScore = v }},
		{"scores.product", 0, func(r *models.AnalysisResult, v int) { r.Scores.Product = v }},
		{"scores.process", 0, func(r *models.AnalysisResult, v int) { r.Scores.Process = v }},
		{"scores.aiEfficiency", 0, func(r *models.AnalysisResult, v int) { r.Scores.AIEfficiency = v }},
		{"scores.overall", 0, func(r *models.AnalysisResult, v int) { r.Scores.Overall = v }},
	}

	stringDefaults = []stringDefault{
		{"textSnippet", NoSnippetText, func(r *models.AnalysisResult, v string) { r.TextSnippet = v }},
		{"aiInsights.summary", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.AIInsights.Summary = v }},
		{"aiInsights.efficiencyBand", UnknownText, func(r *models.AnalysisResult, v string) { r.AIInsights.EfficiencyBand = v }},
		{"aiInsights.promptQuality", UnknownText, func(r *models.AnalysisResult, v string) { r.AIInsights.PromptQuality = v }},
		{"codebaseVerification.githubStructure", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.CodebaseVerification.GithubStructure = v }},
		{"codebaseVerification.scriptQuality", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.CodebaseVerification.ScriptQuality = v }},
		{"codebaseVerification.readmeCredibility", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.CodebaseVerification.ReadmeCredibility = v }},
		{"reportAnalysis.structureQuality", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.ReportAnalysis.StructureQuality = v }},
		{"reportAnalysis.visualEvidence", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.ReportAnalysis.VisualEvidence = v }},
		{"reportAnalysis.keyInferences", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.ReportAnalysis.KeyInferences = v }},
		{"reportAnalysis.additionalEffort", AnalysisFailedText, func(r *models.AnalysisResult, v string) { r.ReportAnalysis.AdditionalEffort = v }},
		{"feedback", IncompleteFeedback, func(r *models.AnalysisResult, v string) { r.Feedback = v }},
	}

	listDefaults = []listDefault{
		{"reportAnalysis.criteriaMet", func(r *models.AnalysisResult, v []string) { r.ReportAnalysis.CriteriaMet = v }},
		{"reportAnalysis.criteriaMissed", func(r *models.AnalysisResult, v []string) { r.ReportAnalysis.CriteriaMissed = v }},
	}

	credibilityValues = []string{models.CredibilityHigh, models.CredibilityMedium, models.CredibilityLow, models.CredibilityUnverified}
	ratingValues      = []string{models.RatingExcellent, models.RatingGood, models.RatingFair, models.RatingPoor}
)

// ResponseNormalizer turns arbitrary engine text into a complete AnalysisResult.
type ResponseNormalizer struct {
	logger zerolog.Logger
}

// NewResponseNormalizer constructs a normalizer.
func NewResponseNormalizer(logger zerolog.Logger) *ResponseNormalizer {
	return &ResponseNormalizer{
		logger: logger.With().Str("component", "response_normalizer").Logger(),
	}
}

// Normalize never fails. studentName always comes from the submission. parsed
// is false when the engine text held no JSON object and the parse-failure
// result was produced instead.
func (n *ResponseNormalizer) Normalize(raw string, studentName string) (result models.AnalysisResult, parsed bool) {
	working, err := decodeObject(ExtractJSON(raw))
	if err != nil {
		observability.NormalizerOutcomes().WithLabelValues("parse_failed").Inc()
		n.logger.Warn().Err(err).Str("student", studentName).Msg("engine response is not valid json")
		return FillAnalysisDefaults(map[string]interface{}{"feedback": ParseFailureFeedback}, studentName), false
	}

	if schema, schemaErr := CompiledSchema(AnalysisResultSchema); schemaErr == nil {
		if validationErr := schema.Validate(working); validationErr != nil {
			observability.NormalizerOutcomes().WithLabelValues("schema_drift").Inc()
			n.logger.Warn().Err(validationErr).Str("student", studentName).Msg("engine response deviates from schema; defaults applied")
		} else {
			observability.NormalizerOutcomes().WithLabelValues("valid").Inc()
		}
	}

	return FillAnalysisDefaults(working, studentName), true
}

// FillAnalysisDefaults applies the default table to a decoded object.
func FillAnalysisDefaults(working map[string]interface{}, studentName string) models.AnalysisResult {
	result := models.AnalysisResult{StudentName: studentName}

	for _, field := range scoreDefaults {
		field.set(&result, coerceScore(lookup(working, field.path), field.fallback))
	}
	for _, field := range stringDefaults {
		field.set(&result, coerceString(lookup(working, field.path), field.fallback))
	}
	for _, field := range listDefaults {
		field.set(&result, coerceStringList(lookup(working, field.path)))
	}

	result.CodebaseVerification.OverallCredibility = coerceEnum(
		lookup(working, "codebaseVerification.overallCredibility"), credibilityValues, models.CredibilityLow)
	result.RubricBreakdown = coerceRubric(lookup(working, "rubricBreakdown"))
	result.CodebaseVerification.FileAnalyses = coerceFileAnalyses(lookup(working, "codebaseVerification.fileAnalyses"))

	return result
}

func decodeObject(candidate string) (map[string]interface{}, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, err
	}
	object, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected json object, got %T", value)
	}
	return object, nil
}

func lookup(object map[string]interface{}, path string) interface{} {
	var current interface{} = object
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = node[key]
		if !ok {
			return nil
		}
	}
	return current
}

func coerceString(value interface{}, fallback string) string {
	text, ok := value.(string)
	if !ok {
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

func coerceNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		text := strings.TrimSpace(v)
		if slash := strings.Index(text, "/"); slash >= 0 {
			text = text[:slash]
		}
		text = strings.TrimSpace(strings.TrimSuffix(text, "%"))
		f, err := strconv.ParseFloat(text, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceScore(value interface{}, fallback int) int {
	number, ok := coerceNumber(value)
	if !ok {
		return fallback
	}
	return roundWithin(number, 0, 100)
}

// roundWithin clamps before converting so out-of-range floats cannot overflow int.
func roundWithin(number float64, low, high int) int {
	return int(math.Round(math.Min(math.Max(number, float64(low)), float64(high))))
}

func coerceStringList(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
			out = append(out, strings.TrimSpace(text))
		}
	}
	return out
}

func coerceEnum(value interface{}, allowed []string, fallback string) string {
	text, ok := value.(string)
	if !ok {
		return fallback
	}
	text = strings.TrimSpace(text)
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, text) {
			return candidate
		}
	}
	return fallback
}

func coerceRubric(value interface{}) []models.RubricItem {
	items, ok := value.([]interface{})
	if !ok {
		return []models.RubricItem{}
	}

	out := make([]models.RubricItem, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		maxScore := defaultRubricMax
		if number, ok := coerceNumber(entry["max"]); ok && number >= 1 {
			maxScore = roundWithin(number, 1, maxRubricMax)
		}

		score := 0
		if number, ok := coerceNumber(entry["score"]); ok {
			score = roundWithin(number, 0, maxScore)
		}

		out = append(out, models.RubricItem{
			Criteria: coerceString(entry["criteria"], fmt.Sprintf("Criterion %d", i+1)),
			Score:    score,
			Max:      maxScore,
			Comment:  coerceString(entry["comment"], ""),
		})
	}
	return out
}

func coerceFileAnalyses(value interface{}) []models.FileAnalysis {
	items, ok := value.([]interface{})
	if !ok {
		return []models.FileAnalysis{}
	}

	out := make([]models.FileAnalysis, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, models.FileAnalysis{
			FileName: coerceString(entry["fileName"], UnknownFileName),
			Critique: coerceString(entry["critique"], NoCritiqueText),
			Rating:   coerceEnum(entry["rating"], ratingValues, models.RatingFair),
		})
	}
	return out
}
