package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

// LearningHandler serves the student side: enrollment, progress, videos and reviews
type LearningHandler struct {
	BaseHandler
	enrollments services.EnrollmentService
	progress    services.ProgressService
	reviews     services.ReviewService
	courses     services.CourseService
}

func NewLearningHandler(
	enrollments services.EnrollmentService,
	progress services.ProgressService,
	reviews services.ReviewService,
	courses services.CourseService,
	logger utils.Logger,
	reporter reporting.Reporter,
) *LearningHandler {
	return &LearningHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		enrollments: enrollments,
		progress:    progress,
		reviews:     reviews,
		courses:     courses,
	}
}

// ===== ENROLLMENT ENDPOINTS =====

// Enroll enrolls the caller in a course
// @Summary Enroll in course
// @Tags enrollments
// @Param id path string true "Course ID"
// @Success 201 {object} SuccessResponse{data=models.Enrollment}
// @Failure 402 {object} ErrorResponse "Paid course without a succeeded payment"
// @Failure 409 {object} ErrorResponse "Already enrolled"
// @Router /courses/{id}/enroll [post]
func (h *LearningHandler) Enroll(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	h.LogRequest(c, "Enrolling user", "course_id", courseID, "user_id", userID)

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: enrollment, Message: "Kursa kaydınız tamamlandı"})
}

func (h *LearningHandler) CancelEnrollment(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	if err := h.enrollments.Cancel(c.Request.Context(), userID, courseID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Kurs kaydınız iptal edildi")
}

// MyEnrollments lists the caller's enrollments, optionally filtered by status
// @Summary List my enrollments
// @Tags enrollments
// @Param status query string false "active, completed, cancelled or expired"
// @Router /me/enrollments [get]
func (h *LearningHandler) MyEnrollments(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var status *models.EnrollmentStatus
	if raw := c.Query("status"); raw != "" {
		s := models.EnrollmentStatus(raw)
		if !s.Valid() {
			respondError(c, http.StatusBadRequest, CodeBadRequest, "Geçersiz kayıt durumu", raw)
			return
		}
		status = &s
	}

	enrollments, err := h.enrollments.ListMine(c.Request.Context(), userID, status)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, enrollments)
}

// ===== PROGRESS ENDPOINTS =====

func (h *LearningHandler) CourseProgress(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	progress, err := h.progress.CourseProgress(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, progress)
}

// CompleteLesson marks a lesson as completed; completing the last lesson issues a certificate
// @Summary Complete lesson
// @Tags progress
// @Param id path string true "Lesson ID"
// @Success 200 {object} SuccessResponse{data=services.LessonCompletionResult}
// @Router /lessons/{id}/complete [post]
func (h *LearningHandler) CompleteLesson(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	lessonID := parseStringIDParam(c, "id")
	if lessonID == "" {
		return
	}

	result, err := h.progress.CompleteLesson(c.Request.Context(), userID, lessonID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, result)
}

func (h *LearningHandler) UpdatePosition(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	lessonID := parseStringIDParam(c, "id")
	if lessonID == "" {
		return
	}

	var req models.UpdatePositionRequest
	if !bindJSON(c, &req) {
		return
	}

	progress, err := h.progress.UpdatePosition(c.Request.Context(), userID, lessonID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, progress)
}

// LessonVideo returns a short lived signed URL for the lesson video
func (h *LearningHandler) LessonVideo(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	lessonID := parseStringIDParam(c, "id")
	if lessonID == "" {
		return
	}

	video, err := h.courses.LessonVideoURL(c.Request.Context(), lessonID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, video)
}

func (h *LearningHandler) MyStats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.progress.UserStats(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, stats)
}

func (h *LearningHandler) MyCertificates(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	certificates, err := h.progress.Certificates(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, certificates)
}

// ===== REVIEW ENDPOINTS =====

// UpsertReview creates or replaces the caller's review of a course
// @Summary Review course
// @Tags reviews
// @Param id path string true "Course ID"
// @Param review body models.ReviewRequest true "Rating 1-5 and optional comment"
// @Router /courses/{id}/review [put]
func (h *LearningHandler) UpsertReview(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	var req models.ReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.reviews.Upsert(c.Request.Context(), userID, courseID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, review)
}

// DeleteReview removes the caller's review. Admins may pass user_id to remove someone else's.
func (h *LearningHandler) DeleteReview(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	authorID := c.DefaultQuery("user_id", userID)
	if err := h.reviews.Delete(c.Request.Context(), userID, courseID, authorID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Değerlendirme silindi")
}
