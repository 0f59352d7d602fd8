package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

type UserHandler struct {
	BaseHandler
	users services.UserService
}

func NewUserHandler(users services.UserService, logger utils.Logger, reporter reporting.Reporter) *UserHandler {
	return &UserHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		users:       users,
	}
}

// ListUsers lists users with optional filtering
// @Summary List users
// @Description Get a paginated list of users for the admin panel
// @Tags admin
// @Accept json
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 12, max: 50)"
// @Param search query string false "Search query (name or email)"
// @Param role query string false "Filter by role (student, instructor, admin)"
// @Success 200 {object} SuccessResponse{data=models.PaginatedResponse}
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	h.LogRequest(c, "Listing users")

	var params models.UserListParams
	if !bindQuery(c, &params) {
		return
	}

	users, err := h.users.List(c.Request.Context(), params)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, users)
}

// UpdateUserRole changes the role of a user
// @Summary Update user role
// @Tags admin
// @Param id path string true "User ID"
// @Param body body models.UpdateRoleRequest true "New role"
// @Success 200 {object} SuccessResponse{data=models.User}
// @Failure 400 {object} ErrorResponse "Invalid role"
// @Failure 409 {object} ErrorResponse "Admins cannot demote themselves"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /admin/users/{id}/role [put]
func (h *UserHandler) UpdateUserRole(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	userID := parseStringIDParam(c, "id")
	if userID == "" {
		return
	}

	var req models.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Updating user role", "user_id", userID, "role", req.Role)

	user, err := h.users.UpdateRole(c.Request.Context(), adminID, userID, req.Role)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, user)
}
