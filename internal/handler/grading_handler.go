package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// GradingHandler exposes the grading pipeline over HTTP.
type GradingHandler struct {
	grading   service.GradingService
	integrity service.IntegrityService
	assistant service.AssistantService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(grading service.GradingService, integrity service.IntegrityService, assistant service.AssistantService, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	if validate == nil {
		validate = dto.NewValidator()
	}
	return &GradingHandler{
		grading:   grading,
		integrity: integrity,
		assistant: assistant,
		validate:  validate,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register wires grading routes.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/analyze", h.analyze)
	router.Post("/plagiarism", h.plagiarism)
	router.Post("/learning-outcomes", h.learningOutcomes)
	router.Post("/assistant/chat", h.assistantChat)
}

func (h *GradingHandler) analyze(c *fiber.Ctx) error {
	var payload dto.AnalyzeSubmissionRequest
	if ok, err := h.bind(c, &payload); !ok {
		return err
	}

	assignment := payload.Assignment.ToModel()
	submission := payload.Submission.ToModel()

	requestLogger(h.logger, c).Info().
		Str("student", submission.StudentName).
		Bool("has_repo", submission.RepoURL != "").
		Msg("analyzing submission")

	result := h.grading.AnalyzeSubmission(c.UserContext(), assignment, submission)
	return utils.SendSuccess(c, "submission analyzed", dto.NewAnalysisResponse(result))
}

func (h *GradingHandler) plagiarism(c *fiber.Ctx) error {
	var payload dto.PlagiarismCheckRequest
	if ok, err := h.bind(c, &payload); !ok {
		return err
	}

	groups := h.integrity.CheckPlagiarism(c.UserContext(), payload.Results)
	return utils.SendSuccess(c, "integrity check completed", dto.PlagiarismResponse{Groups: groups})
}

func (h *GradingHandler) learningOutcomes(c *fiber.Ctx) error {
	var payload dto.LearningOutcomesRequest
	if ok, err := h.bind(c, &payload); !ok {
		return err
	}

	outcomes := h.grading.GenerateLearningOutcomes(c.UserContext(), payload.Description, payload.AssignmentFile.ToModel())
	return utils.SendSuccess(c, "learning outcomes generated", dto.LearningOutcomesResponse{Outcomes: outcomes})
}

func (h *GradingHandler) assistantChat(c *fiber.Ctx) error {
	var payload dto.AssistantChatRequest
	if ok, err := h.bind(c, &payload); !ok {
		return err
	}

	reply := h.assistant.ChatWithGlobalAssistant(c.UserContext(), payload.Message, payload.Results, payload.Assignment)
	return utils.SendSuccess(c, "assistant replied", dto.AssistantChatResponse{Reply: reply})
}

// bind parses and validates the body. When ok is false the error response
// has already been written.
func (h *GradingHandler) bind(c *fiber.Ctx, payload interface{}) (ok bool, err error) {
	if err := c.BodyParser(payload); err != nil {
		return false, utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(payload); err != nil {
		if isValidationError(err) {
			return false, utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		}
		return false, utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return true, nil
}
