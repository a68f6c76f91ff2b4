package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/service"
	"github.com/noah-isme/interview-prep-api/internal/utils"
)

// InterviewHandler exposes the interview lifecycle over HTTP.
type InterviewHandler struct {
	service  service.InterviewService
	codeRuns service.CodeRunService
	reports  service.ReportService
	logger   zerolog.Logger
}

// NewInterviewHandler constructs the handler. Code runs and reports are optional and answer
// 503 when not configured.
func NewInterviewHandler(interviews service.InterviewService, codeRuns service.CodeRunService, reports service.ReportService, logger zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		service:  interviews,
		codeRuns: codeRuns,
		reports:  reports,
		logger:   logger.With().Str("component", "interview_handler").Logger(),
	}
}

// Register attaches the interview routes. Generation and answer routes accept an optional
// limiter applied before the handler.
func (h *InterviewHandler) Register(router fiber.Router, limiter ...fiber.Handler) {
	limited := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, limiter...), handler)
	}

	router.Post("", h.create)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("/:id/generate-questions", limited(h.generateQuestions)...)
	router.Post("/:id/answers", limited(h.submitAnswer)...)
	router.Get("/:id/status", h.status)
	router.Post("/:id/reset", h.reset)
	router.Post("/:id/questions/:index/run", limited(h.runCode)...)
	router.Post("/:id/report", h.exportReport)
}

func (h *InterviewHandler) create(c *fiber.Ctx) error {
	var payload dto.InterviewCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Create(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "interview created", resp)
}

func (h *InterviewHandler) list(c *fiber.Ctx) error {
	items, err := h.service.List(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "interviews retrieved", items)
}

func (h *InterviewHandler) get(c *fiber.Ctx) error {
	resp, err := h.service.Get(requestContext(c), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "interview retrieved", resp)
}

func (h *InterviewHandler) generateQuestions(c *fiber.Ctx) error {
	resp, err := h.service.GenerateQuestions(requestContext(c), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "questions generated", resp)
}

func (h *InterviewHandler) submitAnswer(c *fiber.Ctx) error {
	var payload dto.InterviewAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.SubmitAnswer(requestContext(c), userIDFromContext(c), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "answer evaluated"
	if resp.Completed {
		message = "interview completed"
	}
	return utils.SendSuccess(c, message, resp)
}

func (h *InterviewHandler) status(c *fiber.Ctx) error {
	resp, err := h.service.Status(requestContext(c), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "interview status", resp)
}

func (h *InterviewHandler) reset(c *fiber.Ctx) error {
	resp, err := h.service.Reset(requestContext(c), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "interview reset", resp)
}

func (h *InterviewHandler) runCode(c *fiber.Ctx) error {
	if h.codeRuns == nil {
		return h.handleError(c, service.ErrCodeRunnerUnavailable)
	}

	index, err := c.ParamsInt("index")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question index")
	}

	var payload dto.CodeRunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.codeRuns.Run(requestContext(c), userIDFromContext(c), c.Params("id"), index, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "code executed", resp)
}

func (h *InterviewHandler) exportReport(c *fiber.Ctx) error {
	if h.reports == nil {
		return h.handleError(c, service.ErrReportStorageUnavailable)
	}

	resp, err := h.reports.Export(requestContext(c), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "report exported", resp)
}

func (h *InterviewHandler) handleError(c *fiber.Ctx, err error) error {
	var incomplete *interview.IncompleteProfileError

	switch {
	case errors.As(err, &incomplete):
		return utils.Fail(c, fiber.StatusBadRequest, "profile incomplete", fiber.Map{"missing": incomplete.Missing})
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, interview.ErrInvalidQuestionIndex),
		errors.Is(err, service.ErrEmptyAnswer),
		errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInterviewForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrInterviewNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "interview not found")
	case errors.Is(err, service.ErrInterviewConflict),
		errors.Is(err, service.ErrInterviewNotCompleted):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, interview.ErrInsufficientQuestions),
		errors.Is(err, interview.ErrGeneration):
		requestLogger(h.logger, c).Warn().Err(err).Str("interview_id", c.Params("id")).Msg("generation failed")
		return utils.SendError(c, fiber.StatusBadGateway, "text generation failed, try again")
	case errors.Is(err, service.ErrCodeRunnerUnavailable),
		errors.Is(err, service.ErrReportStorageUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrReportContentRejected):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Str("path", c.Path()).Msg("interview request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
