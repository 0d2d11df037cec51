package service

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

const inlineTextExcerptChars = 2000

// CompiledPrompt is the ordered payload for one analysis call.
type CompiledPrompt struct {
	Parts []ai.ContentPart
	// EnableRetrieval is set when link-based evidence requires the retrieval
	// tool. A retrieval call cannot also be schema constrained.
	EnableRetrieval bool
}

// Request turns the compiled prompt into an engine request. The response
// schema is only attached when retrieval is off.
func (p CompiledPrompt) Request(operation string, schema *ai.ResponseSchema) ai.GenerateRequest {
	req := ai.GenerateRequest{
		Operation:       operation,
		Parts:           p.Parts,
		EnableRetrieval: p.EnableRetrieval,
	}
	if !p.EnableRetrieval {
		req.Schema = schema
	}
	return req
}

// CompilePrompt assembles the analysis payload deterministically.
func CompilePrompt(assignment models.AssignmentConfig, submission models.StudentSubmission, evidence string) CompiledPrompt {
	var prompt CompiledPrompt

	if assignment.AssignmentFile != nil {
		prompt.Parts = append(prompt.Parts,
			InlinePart(*assignment.AssignmentFile),
			ai.Text(fmt.Sprintf("[SYSTEM] The above is the Assignment Brief document (%s).", assignment.AssignmentFile.Name)),
		)
	}

	switch {
	case submission.ReportFile != nil:
		prompt.Parts = append(prompt.Parts,
			InlinePart(*submission.ReportFile),
			ai.Text(fmt.Sprintf("[SYSTEM] The above is the Student's Project Report file (%s). Read this thoroughly. Analyze the text structure, arguments, AND any images/diagrams present in it.", submission.ReportFile.Name)),
		)
	case strings.TrimSpace(submission.ReportLink) != "":
		prompt.Parts = append(prompt.Parts, ai.Text(fmt.Sprintf(
			"[SYSTEM] The Student's Project Report is hosted at the following link: %s\nUse the retrieval tool to access this link and read the full report before grading. If the link cannot be accessed, state so explicitly and lower the confidence score.",
			strings.TrimSpace(submission.ReportLink))))
		prompt.EnableRetrieval = true
	}

	switch {
	case submission.PromptLogFile != nil:
		prompt.Parts = append(prompt.Parts,
			InlinePart(*submission.PromptLogFile),
			ai.Text(fmt.Sprintf("[SYSTEM] The above is the Student's AI Prompt/Chat Logs (%s). Read this to evaluate their AI efficiency.", submission.PromptLogFile.Name)),
		)
	case strings.TrimSpace(submission.PromptLogLink) != "":
		prompt.Parts = append(prompt.Parts, ai.Text(fmt.Sprintf(
			"[SYSTEM] The Student's AI Prompt/Chat Logs are hosted at the following link: %s\nUse the retrieval tool to access this link and evaluate their AI efficiency from it. If the link cannot be accessed, state so explicitly and lower the confidence score.",
			strings.TrimSpace(submission.PromptLogLink))))
		prompt.EnableRetrieval = true
	}

	prompt.Parts = append(prompt.Parts,
		ai.Text("=== GITHUB REPOSITORY ANALYSIS ===\n"+evidence+"\n=== END OF GITHUB REPOSITORY ANALYSIS ==="),
		ai.Text(gradingProtocol(assignment, submission)),
	)

	return prompt
}

// InlinePart converts an attachment into a binary part, stripping any data
// URI header and sniffing the MIME type when the caller did not supply one.
func InlinePart(attachment models.Attachment) ai.InlineBinaryPart {
	data, headerMime := ai.StripDataURI(attachment.Data)

	mimeType := strings.TrimSpace(attachment.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = headerMime
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detectMimeType(data)
	}

	return ai.InlineBinaryPart{
		Name:     attachment.Name,
		MimeType: mimeType,
		Data:     data,
	}
}

func detectMimeType(data string) string {
	decoded, err := decodeBase64(data)
	if err != nil || len(decoded) == 0 {
		return "application/octet-stream"
	}
	detected := mimetype.Detect(decoded).String()
	if semi := strings.Index(detected, ";"); semi >= 0 {
		detected = detected[:semi]
	}
	return detected
}

func decodeBase64(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
}

func gradingProtocol(assignment models.AssignmentConfig, submission models.StudentSubmission) string {
	var b strings.Builder

	b.WriteString("You are a STRICT, DETAIL-ORIENTED Computer Science Professor.\n")
	b.WriteString("Your job is to grade the student's submission rigorously against the specific learning outcomes and rubric.\n")
	b.WriteString("DO NOT act as a peer reviewer or a friendly coach. Act as an academic evaluator.\n")
	b.WriteString("DO NOT assume the student did the work just because they used a heading. VERIFY THE CONTENT.\n\n")

	b.WriteString("ASSIGNMENT CONFIG:\n")
	b.WriteString("Title: " + assignment.Title + "\n")
	b.WriteString("Context: " + assignment.ClassContext + "\n")
	if strings.TrimSpace(assignment.Description) != "" {
		b.WriteString("Description: " + assignment.Description + "\n")
	}
	b.WriteString("\nLEARNING OUTCOMES (Must be demonstrated in the work):\n")
	for _, outcome := range assignment.LearningOutcomes {
		b.WriteString("- " + outcome + "\n")
	}
	b.WriteString("\nINSTRUCTOR RUBRIC & REMARKS (The Source of Truth):\n")
	b.WriteString("\"" + assignment.AdditionalCriteria + "\"\n\n")

	b.WriteString("GRADING PROTOCOL:\n")
	b.WriteString("1. Strict Adherence: If the instructor provided a Rubric with point values, follow it precisely. Never award a rubric score above its max.\n")
	b.WriteString("2. Content Verification: If the student claims a feature in the report, check the codebase evidence above for it. Vague or generic claims are MARKED DOWN for lack of depth. Claims contradicted by the code lower the credibility rating.\n")
	b.WriteString("3. Tone Analysis: Adhere to the strictness implied in the instructor's remarks. If they disapprove of AI copying, be harsh on the AI Efficiency score when the prompt logs show lazy copying.\n")
	b.WriteString("4. Process over Product: Unless stated otherwise, value the reasoning in the report. A perfect app with a generated report is a low grade. A buggy app with a brilliant post-mortem is a higher grade.\n\n")

	b.WriteString("CONFIDENCE SCORING (confidenceScore, integer 0-100, reflects evidence completeness):\n")
	for _, band := range models.ConfidencePolicy() {
		b.WriteString("- " + band.Range + ": " + band.Meaning + "\n")
	}
	b.WriteString("\n")

	b.WriteString("STUDENT SUBMISSION DATA:\n")
	b.WriteString("Name: " + submission.StudentName + "\n")
	b.WriteString("GitHub URL: " + submission.RepoURL + "\n\n")
	b.WriteString("Report Text (if not in file):\n\"" + excerpt(submission.ReportText) + "\"\n\n")
	b.WriteString("Prompt Log Text (if not in file):\n\"" + excerpt(submission.PromptLog) + "\"\n\n")

	b.WriteString("TASK:\nGenerate a detailed grading analysis as a single JSON object with exactly these top-level keys:\n")
	b.WriteString(analysisOutputDescription)

	return b.String()
}

const analysisOutputDescription = `{
  "confidenceScore": integer 0-100 following the confidence scoring bands,
  "textSnippet": "an extract of roughly 300 words copied verbatim from the student's report",
  "scores": {"product": 0-100, "process": 0-100, "aiEfficiency": 0-100, "overall": 0-100},
  "rubricBreakdown": [{"criteria": string, "score": integer, "max": integer, "comment": string}],
  "aiInsights": {"summary": string, "efficiencyBand": string, "promptQuality": string},
  "codebaseVerification": {
    "githubStructure": string,
    "scriptQuality": string,
    "readmeCredibility": string,
    "overallCredibility": "High" | "Medium" | "Low" | "Unverified",
    "fileAnalyses": [{"fileName": string, "critique": string, "rating": "Excellent" | "Good" | "Fair" | "Poor"}]
  },
  "reportAnalysis": {
    "structureQuality": string,
    "visualEvidence": string,
    "criteriaMet": [string],
    "criteriaMissed": [string],
    "keyInferences": string,
    "additionalEffort": string
  },
  "feedback": "direct academic feedback to the student"
}
If the repository could not be read, set overallCredibility to "Unverified" and say so in githubStructure. Do not invent file contents.
Return ONLY the JSON object.`

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= inlineTextExcerptChars {
		return text
	}
	return string(runes[:inlineTextExcerptChars]) + "..."
}
