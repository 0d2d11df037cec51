package dto

import (
	"strings"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AttachmentPayload is an inline base64 upload, optionally data URI prefixed.
type AttachmentPayload struct {
	Name     string `json:"name" validate:"required,max=255"`
	Data     string `json:"data" validate:"required"`
	MimeType string `json:"mimeType" validate:"omitempty,max=255"`
}

// AssignmentConfigRequest describes the assignment brief.
type AssignmentConfigRequest struct {
	Title              string             `json:"title" validate:"required,max=300"`
	Description        string             `json:"description" validate:"omitempty,max=20000"`
	LearningOutcomes   []string           `json:"learningOutcomes" validate:"omitempty,max=50,dive,max=1000"`
	ClassContext       string             `json:"classContext" validate:"omitempty,max=300"`
	AdditionalCriteria string             `json:"additionalCriteria" validate:"omitempty,max=20000"`
	AssignmentFile     *AttachmentPayload `json:"assignmentFile" validate:"omitempty"`
}

// StudentSubmissionRequest is a single student's hand-in. At least one of the
// report text, file or link must be provided.
type StudentSubmissionRequest struct {
	StudentName   string             `json:"studentName" validate:"required,max=200"`
	RepoURL       string             `json:"repoUrl" validate:"omitempty,max=500"`
	ReportText    string             `json:"reportText" validate:"required_without_all=ReportFile ReportLink"`
	ReportFile    *AttachmentPayload `json:"reportFile" validate:"omitempty"`
	ReportLink    string             `json:"reportLink" validate:"omitempty,url,max=2000"`
	PromptLog     string             `json:"promptLog"`
	PromptLogFile *AttachmentPayload `json:"promptLogFile" validate:"omitempty"`
	PromptLogLink string             `json:"promptLogLink" validate:"omitempty,url,max=2000"`
}

// AnalyzeSubmissionRequest is the body of POST /grading/analyze.
type AnalyzeSubmissionRequest struct {
	Assignment AssignmentConfigRequest  `json:"assignment" validate:"required"`
	Submission StudentSubmissionRequest `json:"submission" validate:"required"`
}

// PlagiarismCheckRequest is the body of POST /grading/plagiarism. Students are
// identified by name, so each name may appear once.
type PlagiarismCheckRequest struct {
	Results []models.AnalysisResult `json:"results" validate:"max=500,distinct_students"`
}

// LearningOutcomesRequest is the body of POST /grading/learning-outcomes.
type LearningOutcomesRequest struct {
	Description    string             `json:"description" validate:"required_without=AssignmentFile,max=20000"`
	AssignmentFile *AttachmentPayload `json:"assignmentFile" validate:"omitempty"`
}

// AssistantChatRequest is the body of POST /grading/assistant/chat.
type AssistantChatRequest struct {
	Message    string                  `json:"message" validate:"max=4000"`
	Results    []models.AnalysisResult `json:"results" validate:"max=500"`
	Assignment models.AssignmentConfig `json:"assignment"`
}

// AnalysisResponse is an AnalysisResult with its display confidence band.
type AnalysisResponse struct {
	models.AnalysisResult
	ConfidenceBand models.ConfidenceBand `json:"confidenceBand"`
}

// PlagiarismResponse wraps the detected groups.
type PlagiarismResponse struct {
	Groups []models.PlagiarismGroup `json:"groups"`
}

// LearningOutcomesResponse wraps generated outcomes.
type LearningOutcomesResponse struct {
	Outcomes []string `json:"outcomes"`
}

// AssistantChatResponse wraps the assistant reply.
type AssistantChatResponse struct {
	Reply string `json:"reply"`
}

// ToModel converts the payload into a model attachment.
func (p *AttachmentPayload) ToModel() *models.Attachment {
	if p == nil {
		return nil
	}
	return &models.Attachment{
		Name:     strings.TrimSpace(p.Name),
		Data:     p.Data,
		MimeType: strings.TrimSpace(p.MimeType),
	}
}

// ToModel converts the request into an AssignmentConfig.
func (r AssignmentConfigRequest) ToModel() models.AssignmentConfig {
	outcomes := make([]string, 0, len(r.LearningOutcomes))
	for _, outcome := range r.LearningOutcomes {
		if trimmed := strings.TrimSpace(outcome); trimmed != "" {
			outcomes = append(outcomes, trimmed)
		}
	}

	return models.AssignmentConfig{
		Title:              strings.TrimSpace(r.Title),
		Description:        r.Description,
		LearningOutcomes:   outcomes,
		ClassContext:       strings.TrimSpace(r.ClassContext),
		AdditionalCriteria: r.AdditionalCriteria,
		AssignmentFile:     r.AssignmentFile.ToModel(),
	}
}

// ToModel converts the request into a StudentSubmission.
func (r StudentSubmissionRequest) ToModel() models.StudentSubmission {
	return models.StudentSubmission{
		StudentName:   strings.TrimSpace(r.StudentName),
		RepoURL:       strings.TrimSpace(r.RepoURL),
		ReportText:    r.ReportText,
		ReportFile:    r.ReportFile.ToModel(),
		ReportLink:    strings.TrimSpace(r.ReportLink),
		PromptLog:     r.PromptLog,
		PromptLogFile: r.PromptLogFile.ToModel(),
		PromptLogLink: strings.TrimSpace(r.PromptLogLink),
	}
}

// NewAnalysisResponse attaches the confidence band to a result.
func NewAnalysisResponse(result models.AnalysisResult) AnalysisResponse {
	return AnalysisResponse{
		AnalysisResult: result,
		ConfidenceBand: models.ClassifyConfidence(result.ConfidenceScore),
	}
}
