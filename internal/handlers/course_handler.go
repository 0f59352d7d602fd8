package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

type CourseHandler struct {
	BaseHandler
	courses services.CourseService
	reviews services.ReviewService
}

func NewCourseHandler(courses services.CourseService, reviews services.ReviewService, logger utils.Logger, reporter reporting.Reporter) *CourseHandler {
	return &CourseHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		courses:     courses,
		reviews:     reviews,
	}
}

// ===== CATALOG ENDPOINTS =====

// ListCourses lists published courses
// @Summary List courses
// @Tags courses
// @Param category query string false "Category slug"
// @Param level query string false "beginner, intermediate or advanced"
// @Param price query string false "free or paid"
// @Param search query string false "Search in title and description"
// @Param sort query string false "newest, popular, rating, price_asc or price_desc"
// @Param page query int false "Page number"
// @Param size query int false "Page size (max 50)"
// @Success 200 {object} SuccessResponse{data=models.PaginatedResponse}
// @Router /courses [get]
func (h *CourseHandler) ListCourses(c *gin.Context) {
	var params models.CourseListParams
	if !bindQuery(c, &params) {
		return
	}

	result, err := h.courses.List(c.Request.Context(), params)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, result)
}

// GetCourse returns a course with its curriculum
// @Summary Get course by slug
// @Tags courses
// @Param slug path string true "Course slug"
// @Success 200 {object} SuccessResponse{data=services.CourseDetailResponse}
// @Failure 404 {object} ErrorResponse
// @Router /courses/{slug} [get]
func (h *CourseHandler) GetCourse(c *gin.Context) {
	slug := parseStringIDParam(c, "id")
	if slug == "" {
		return
	}

	viewerID, _ := GetUserIDFromContext(c)
	course, err := h.courses.GetBySlug(c.Request.Context(), slug, viewerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, course)
}

func (h *CourseHandler) ListCategories(c *gin.Context) {
	categories, err := h.courses.Categories(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	respondOK(c, categories)
}

// ListReviews returns the reviews of a course
// @Summary List course reviews
// @Tags reviews
// @Param slug path string true "Course slug"
// @Router /courses/{slug}/reviews [get]
func (h *CourseHandler) ListReviews(c *gin.Context) {
	slug := parseStringIDParam(c, "id")
	if slug == "" {
		return
	}

	page := queryInt(c, "page", 1, 0)
	size := queryInt(c, "size", models.DefaultPageSize, models.MaxPageSize)

	result, err := h.reviews.List(c.Request.Context(), slug, page, size)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, result)
}

// ===== INSTRUCTOR ENDPOINTS =====

// CreateCourse creates a draft course owned by the caller
// @Summary Create course
// @Tags courses
// @Accept json
// @Produce json
// @Param course body models.CourseCreateRequest true "Course data"
// @Success 201 {object} SuccessResponse{data=models.Course}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /courses [post]
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.CourseCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating course", "title", req.Title)

	course, err := h.courses.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, course)
}

func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	var req models.CourseUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	course, err := h.courses.Update(c.Request.Context(), courseID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, course)
}

func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	h.LogRequest(c, "Deleting course", "course_id", courseID)

	if err := h.courses.Delete(c.Request.Context(), courseID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Kurs silindi")
}

func (h *CourseHandler) PublishCourse(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	h.LogRequest(c, "Publishing course", "course_id", courseID)

	course, err := h.courses.Publish(c.Request.Context(), courseID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, course)
}

func (h *CourseHandler) ArchiveCourse(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	course, err := h.courses.Archive(c.Request.Context(), courseID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, course)
}

// ===== CURRICULUM ENDPOINTS =====

func (h *CourseHandler) CreateModule(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	var req models.ModuleRequest
	if !bindJSON(c, &req) {
		return
	}

	module, err := h.courses.CreateModule(c.Request.Context(), courseID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, module)
}

func (h *CourseHandler) UpdateModule(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	moduleID := parseStringIDParam(c, "id")
	if moduleID == "" {
		return
	}

	var req models.ModuleRequest
	if !bindJSON(c, &req) {
		return
	}

	module, err := h.courses.UpdateModule(c.Request.Context(), moduleID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, module)
}

func (h *CourseHandler) DeleteModule(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	moduleID := parseStringIDParam(c, "id")
	if moduleID == "" {
		return
	}

	if err := h.courses.DeleteModule(c.Request.Context(), moduleID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Modül silindi")
}

// ReorderModules sets the module order of a course
// @Summary Reorder modules
// @Tags courses
// @Param body body models.ReorderModulesRequest true "Every module id of the course in the new order"
// @Router /courses/{id}/modules/order [put]
func (h *CourseHandler) ReorderModules(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	courseID := parseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	var req models.ReorderModulesRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.courses.ReorderModules(c.Request.Context(), courseID, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Modül sırası güncellendi")
}

func (h *CourseHandler) CreateLesson(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	moduleID := parseStringIDParam(c, "id")
	if moduleID == "" {
		return
	}

	var req models.LessonRequest
	if !bindJSON(c, &req) {
		return
	}

	lesson, err := h.courses.CreateLesson(c.Request.Context(), moduleID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, lesson)
}

func (h *CourseHandler) UpdateLesson(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	lessonID := parseStringIDParam(c, "id")
	if lessonID == "" {
		return
	}

	var req models.LessonRequest
	if !bindJSON(c, &req) {
		return
	}

	lesson, err := h.courses.UpdateLesson(c.Request.Context(), lessonID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, lesson)
}

func (h *CourseHandler) DeleteLesson(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	lessonID := parseStringIDParam(c, "id")
	if lessonID == "" {
		return
	}

	if err := h.courses.DeleteLesson(c.Request.Context(), lessonID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "Ders silindi")
}
