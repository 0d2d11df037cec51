package models

// Attachment is a binary upload carried inline as base64, optionally prefixed
// with a data URI header.
type Attachment struct {
	Name     string `json:"name"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// AssignmentConfig describes the brief an instructor grades against.
type AssignmentConfig struct {
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	LearningOutcomes   []string    `json:"learningOutcomes"`
	ClassContext       string      `json:"classContext"`
	AdditionalCriteria string      `json:"additionalCriteria"`
	AssignmentFile     *Attachment `json:"assignmentFile,omitempty"`
}

// StudentSubmission bundles everything a student handed in.
type StudentSubmission struct {
	StudentName   string      `json:"studentName"`
	RepoURL       string      `json:"repoUrl"`
	ReportText    string      `json:"reportText"`
	ReportFile    *Attachment `json:"reportFile,omitempty"`
	ReportLink    string      `json:"reportLink,omitempty"`
	PromptLog     string      `json:"promptLog"`
	PromptLogFile *Attachment `json:"promptLogFile,omitempty"`
	PromptLogLink string      `json:"promptLogLink,omitempty"`
}

// Scores holds the headline marks, each in [0,100].
type Scores struct {
	Product      int `json:"product"`
	Process      int `json:"process"`
	AIEfficiency int `json:"aiEfficiency"`
	Overall      int `json:"overall"`
}

// RubricItem is a single rubric line. Score never exceeds Max.
type RubricItem struct {
	Criteria string `json:"criteria"`
	Score    int    `json:"score"`
	Max      int    `json:"max"`
	Comment  string `json:"comment"`
}

// AIInsights summarises how the student collaborated with AI tooling.
type AIInsights struct {
	Summary        string `json:"summary"`
	EfficiencyBand string `json:"efficiencyBand"`
	PromptQuality  string `json:"promptQuality"`
}

// Credibility ratings for a codebase.
const (
	CredibilityHigh       = "High"
	CredibilityMedium     = "Medium"
	CredibilityLow        = "Low"
	CredibilityUnverified = "Unverified"
)

// File ratings used by FileAnalysis.
const (
	RatingExcellent = "Excellent"
	RatingGood      = "Good"
	RatingFair      = "Fair"
	RatingPoor      = "Poor"
)

// FileAnalysis is the engine's critique of one repository file.
type FileAnalysis struct {
	FileName string `json:"fileName"`
	Critique string `json:"critique"`
	Rating   string `json:"rating"`
}

// CodebaseVerification cross-checks the repository against the report.
type CodebaseVerification struct {
	GithubStructure    string         `json:"githubStructure"`
	ScriptQuality      string         `json:"scriptQuality"`
	ReadmeCredibility  string         `json:"readmeCredibility"`
	OverallCredibility string         `json:"overallCredibility"`
	FileAnalyses       []FileAnalysis `json:"fileAnalyses"`
}

// ReportAnalysis is the deep reading of the written report.
type ReportAnalysis struct {
	StructureQuality string   `json:"structureQuality"`
	VisualEvidence   string   `json:"visualEvidence"`
	CriteriaMet      []string `json:"criteriaMet"`
	CriteriaMissed   []string `json:"criteriaMissed"`
	KeyInferences    string   `json:"keyInferences"`
	AdditionalEffort string   `json:"additionalEffort"`
}

// AnalysisResult is the fully populated grading analysis for one student.
type AnalysisResult struct {
	StudentName          string               `json:"studentName"`
	ConfidenceScore      int                  `json:"confidenceScore"`
	TextSnippet          string               `json:"textSnippet"`
	Scores               Scores               `json:"scores"`
	RubricBreakdown      []RubricItem         `json:"rubricBreakdown"`
	AIInsights           AIInsights           `json:"aiInsights"`
	CodebaseVerification CodebaseVerification `json:"codebaseVerification"`
	ReportAnalysis       ReportAnalysis       `json:"reportAnalysis"`
	Feedback             string               `json:"feedback"`
}

// Plagiarism confidence labels.
const (
	PlagiarismHigh   = "High"
	PlagiarismMedium = "Medium"
	PlagiarismLow    = "Low"
)

// PlagiarismGroup names two or more students suspected of collusion.
type PlagiarismGroup struct {
	Students   []string `json:"students"`
	Reason     string   `json:"reason"`
	Confidence string   `json:"confidence"`
}
