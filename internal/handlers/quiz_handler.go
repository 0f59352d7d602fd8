package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

type QuizHandler struct {
	BaseHandler
	quizzes services.QuizService
}

func NewQuizHandler(quizzes services.QuizService, logger utils.Logger, reporter reporting.Reporter) *QuizHandler {
	return &QuizHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		quizzes:     quizzes,
	}
}

// ===== QUIZ TAKING ENDPOINTS =====

// GetQuiz returns a quiz without answers for an enrolled user
// @Summary Get quiz for taking
// @Tags quizzes
// @Param id path string true "Quiz ID"
// @Success 200 {object} SuccessResponse{data=services.QuizForTaking}
// @Failure 403 {object} ErrorResponse "Not enrolled"
// @Router /quizzes/{id} [get]
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	quizID := parseStringIDParam(c, "id")
	if quizID == "" {
		return
	}

	quiz, err := h.quizzes.GetForTaking(c.Request.Context(), userID, quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, quiz)
}

// SubmitQuiz grades a set of answers and records the attempt
// @Summary Submit quiz
// @Tags quizzes
// @Param id path string true "Quiz ID"
// @Param body body models.SubmitQuizRequest true "Answers keyed by question id"
// @Success 200 {object} SuccessResponse{data=services.QuizResult}
// @Failure 400 {object} ErrorResponse "Time limit exceeded or attempts exhausted"
// @Router /quizzes/{id}/submit [post]
func (h *QuizHandler) SubmitQuiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	quizID := parseStringIDParam(c, "id")
	if quizID == "" {
		return
	}

	var req models.SubmitQuizRequest
	if !bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting quiz", "quiz_id", quizID, "answers", len(req.Answers))

	result, err := h.quizzes.Submit(c.Request.Context(), userID, quizID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, result)
}

func (h *QuizHandler) ListAttempts(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	quizID := parseStringIDParam(c, "id")
	if quizID == "" {
		return
	}

	attempts, err := h.quizzes.Attempts(c.Request.Context(), userID, quizID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, attempts)
}

// ===== QUIZ AUTHORING ENDPOINTS =====

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	var req models.QuizCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	quiz, err := h.quizzes.Create(c.Request.Context(), courseID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, quiz)
}

func (h *QuizHandler) AddQuestion(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	quizID := parseStringIDParam(c, "id")
	if quizID == "" {
		return
	}

	var req models.QuestionCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	question, err := h.quizzes.AddQuestion(c.Request.Context(), quizID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, question)
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	quizID := parseStringIDParam(c, "id")
	if quizID == "" {
		return
	}

	if err := h.quizzes.Delete(c.Request.Context(), quizID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Sınav silindi")
}
