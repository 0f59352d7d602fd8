package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

type DashboardHandler struct {
	BaseHandler
	service services.DashboardService
}

func NewDashboardHandler(service services.DashboardService, logger utils.Logger, reporter reporting.Reporter) *DashboardHandler {
	return &DashboardHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		service:     service,
	}
}

// ===== DASHBOARD ENDPOINTS =====

// GetDashboardStats returns overall dashboard statistics
// @Summary Get dashboard statistics
// @Description Get platform totals, revenue and trends against the previous period
// @Tags admin
// @Accept json
// @Produce json
// @Param period query int false "Period in days for trend calculation (default: 30)"
// @Success 200 {object} SuccessResponse{data=services.DashboardStats}
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden or MFA required"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /admin/stats [get]
func (h *DashboardHandler) GetDashboardStats(c *gin.Context) {
	h.LogRequest(c, "Getting dashboard stats")

	period := queryInt(c, "period", 30, 365)

	stats, err := h.service.Stats(c.Request.Context(), period)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, stats)
}

// GetRevenueTrend returns revenue grouped by time bucket
// @Summary Get revenue trend
// @Tags admin
// @Param period query string false "Time period: week, month, or year (default: month)"
// @Success 200 {object} SuccessResponse{data=services.RevenueTrendResponse}
// @Failure 400 {object} ErrorResponse "Bad request - invalid period"
// @Router /admin/revenue [get]
func (h *DashboardHandler) GetRevenueTrend(c *gin.Context) {
	h.LogRequest(c, "Getting revenue trend")

	trend, err := h.service.RevenueTrend(c.Request.Context(), c.DefaultQuery("period", "month"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, trend)
}

// GetTopCourses returns the courses with the most enrollments
// @Summary Get top courses
// @Tags admin
// @Param limit query int false "Number of courses to return (default: 5, max: 20)"
// @Router /admin/top-courses [get]
func (h *DashboardHandler) GetTopCourses(c *gin.Context) {
	limit := queryInt(c, "limit", 5, 20)

	courses, err := h.service.TopCourses(c.Request.Context(), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, courses)
}

// GetRecentEnrollments returns the latest enrollments
// @Summary Get recent enrollments
// @Tags admin
// @Param limit query int false "Number of enrollments to return (default: 10, max: 50)"
// @Router /admin/recent-enrollments [get]
func (h *DashboardHandler) GetRecentEnrollments(c *gin.Context) {
	limit := queryInt(c, "limit", 10, 50)

	enrollments, err := h.service.RecentEnrollments(c.Request.Context(), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, enrollments)
}

// Export streams an XLSX report
// @Summary Export report
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param kind path string true "enrollments, payments or quiz_results"
// @Router /admin/export/{kind} [get]
func (h *DashboardHandler) Export(c *gin.Context) {
	kind := parseStringIDParam(c, "kind")
	if kind == "" {
		return
	}

	h.LogRequest(c, "Exporting report", "kind", kind)

	file, err := h.service.Export(c.Request.Context(), kind)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
