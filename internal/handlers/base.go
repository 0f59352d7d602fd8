package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

// SuccessResponse is the envelope of every successful JSON response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the envelope of every failed JSON response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error codes returned in ErrorResponse.Error
const (
	CodeBadRequest       = "bad_request"
	CodeValidation       = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodePaymentRequired  = "payment_required"
	CodeRateLimited      = "rate_limited"
	CodePaymentsDisabled = "payments_disabled"
	CodeNotImplemented   = "not_implemented"
	CodeMFARequired      = "mfa_required"
	CodeInvalidMFACode   = "invalid_mfa_code"
	CodeInternal         = "internal_error"
)

const paymentsDisabledMessage = "Ödeme sistemi şu anda devre dışı"

type BaseHandler struct {
	logger   utils.Logger
	reporter reporting.Reporter
}

func NewBaseHandler(logger utils.Logger, reporter reporting.Reporter) BaseHandler {
	if reporter == nil {
		reporter = reporting.NopReporter{}
	}
	return BaseHandler{logger: logger, reporter: reporter}
}

// LogRequest logs an incoming operation with the request scoped logger
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	utils.GetLogger(c, h.logger).Error(msg, args...)
}

// ===== RESPONSE HELPERS =====

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: message})
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Error:   code,
		Message: message,
		Details: details,
	})
}

// ===== ERROR HANDLING =====

// handleServiceError translates a service error into an HTTP response.
// Unexpected errors are logged and reported.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var ve services.ValidationErrors
	if errors.As(err, &ve) {
		respondError(c, http.StatusBadRequest, CodeValidation, "Geçersiz istek verisi", ve)
		return
	}

	var pe *services.PermissionError
	if errors.As(err, &pe) {
		respondError(c, http.StatusForbidden, CodeForbidden, "Bu işlem için yetkiniz yok", gin.H{
			"resource": pe.Resource,
			"action":   pe.Action,
			"reason":   pe.Reason,
		})
		return
	}

	var rule *services.BusinessRuleError
	if errors.As(err, &rule) && rule.Err == nil {
		respondError(c, http.StatusBadRequest, rule.Rule, rule.Message, nil)
		return
	}

	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		h.LogError(c, err, "Unexpected service error", "path", c.FullPath())
		h.reporter.Error(err, c.Request, map[string]interface{}{
			"request_id": c.GetString("request_id"),
			"user_id":    c.GetString(ctxUserID),
		})
		respondError(c, status, code, message, nil)
		return
	}

	// A business rule wrapping a sentinel keeps its own wording
	if rule != nil {
		message = rule.Message
	}
	respondError(c, status, code, message, nil)
}

func classify(err error) (int, string, string) {
	switch {
	case services.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound, notFoundMessage(err)
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthorized, "Oturum açmanız gerekiyor"
	case errors.Is(err, services.ErrInvalidMFACode):
		return http.StatusUnauthorized, CodeInvalidMFACode, "Doğrulama kodu geçersiz"
	case errors.Is(err, services.ErrNotEnrolled):
		return http.StatusForbidden, "not_enrolled", "Bu kursa kayıtlı değilsiniz"
	case errors.Is(err, services.ErrAlreadyEnrolled):
		return http.StatusConflict, "already_enrolled", "Bu kursa zaten kayıtlısınız"
	case errors.Is(err, services.ErrMFAAlreadyEnabled):
		return http.StatusConflict, CodeConflict, "İki adımlı doğrulama zaten etkin"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, CodeConflict, "Kaynak bu işlem için uygun durumda değil"
	case errors.Is(err, services.ErrPaymentRequired):
		return http.StatusPaymentRequired, CodePaymentRequired, "Bu kurs için ödeme gerekiyor"
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests, CodeRateLimited, "Çok fazla deneme yaptınız, lütfen daha sonra tekrar deneyin"
	case errors.Is(err, services.ErrPaymentsDisabled):
		return http.StatusNotImplemented, CodePaymentsDisabled, paymentsDisabledMessage
	case errors.Is(err, services.ErrSSONotConfigured):
		return http.StatusNotImplemented, CodeNotImplemented, "Google ile giriş yapılandırılmamış"
	case errors.Is(err, services.ErrCourseNotPublished):
		return http.StatusBadRequest, "course_not_published", "Kurs yayında değil"
	case errors.Is(err, services.ErrMFANotEnabled), errors.Is(err, services.ErrMFASetupMissing):
		return http.StatusBadRequest, "mfa_not_enabled", "İki adımlı doğrulama etkin değil"
	case errors.Is(err, services.ErrVideoUnavailable):
		return http.StatusNotFound, CodeNotFound, "Bu derse ait video bulunamadı"
	default:
		return http.StatusInternalServerError, CodeInternal, "Beklenmeyen bir hata oluştu"
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		return "Kurs bulunamadı"
	case errors.Is(err, services.ErrLessonNotFound):
		return "Ders bulunamadı"
	case errors.Is(err, services.ErrQuizNotFound):
		return "Sınav bulunamadı"
	case errors.Is(err, services.ErrEnrollmentNotFound):
		return "Kayıt bulunamadı"
	case errors.Is(err, services.ErrPaymentNotFound):
		return "Ödeme bulunamadı"
	case errors.Is(err, services.ErrUserNotFound):
		return "Kullanıcı bulunamadı"
	default:
		return "Kaynak bulunamadı"
	}
}

// ===== REQUEST HELPERS =====

// bindJSON decodes the body into dst and writes a 400 when it cannot
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "Geçersiz istek gövdesi", err.Error())
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "Geçersiz sorgu parametresi", err.Error())
		return false
	}
	return true
}

// parseStringIDParam returns the path parameter or "" after writing a 400
func parseStringIDParam(c *gin.Context, name string) string {
	id := c.Param(name)
	if id == "" {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "Eksik parametre: "+name, nil)
		return ""
	}
	return id
}

// queryInt reads an integer query parameter, falling back to def and clamping to max
func queryInt(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 1 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// requireUserID returns the authenticated user id or writes a 401
func requireUserID(c *gin.Context) (string, bool) {
	userID, err := GetUserIDFromContext(c)
	if err != nil || userID == "" {
		respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Oturum açmanız gerekiyor", nil)
		return "", false
	}
	return userID, true
}
