package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
	"github.com/7p-education/platform/internal/validator"
)

type MFAHandler struct {
	BaseHandler
	mfa       services.MFAService
	validator *validator.Validator
}

func NewMFAHandler(mfa services.MFAService, validator *validator.Validator, logger utils.Logger, reporter reporting.Reporter) *MFAHandler {
	return &MFAHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		mfa:         mfa,
		validator:   validator,
	}
}

// bindCode binds and validates {"code": "..."}
func (h *MFAHandler) bindCode(c *gin.Context) (string, bool) {
	var req models.MFACodeRequest
	if !bindJSON(c, &req) {
		return "", false
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return "", false
	}
	return req.Code, true
}

func (h *MFAHandler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	status, err := h.mfa.Status(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, status)
}

// Setup starts MFA enrollment. The secret and backup codes are only ever returned here.
// @Summary Start MFA setup
// @Tags mfa
// @Success 200 {object} SuccessResponse{data=services.MFASetupResponse}
// @Failure 409 {object} ErrorResponse "Already enabled"
// @Router /mfa/setup [post]
func (h *MFAHandler) Setup(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting mfa setup", "user_id", userID)

	setup, err := h.mfa.Setup(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, setup)
}

func (h *MFAHandler) VerifySetup(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	code, ok := h.bindCode(c)
	if !ok {
		return
	}

	if err := h.mfa.VerifySetup(c.Request.Context(), userID, code); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "İki adımlı doğrulama etkinleştirildi")
}

// Verify checks a code for the signed-in user and returns an MFA-verified session
// @Summary Step up to an MFA-verified session
// @Tags mfa
// @Param body body models.MFACodeRequest true "TOTP or backup code"
// @Success 200 {object} SuccessResponse{data=services.SessionResponse}
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /mfa/verify [post]
func (h *MFAHandler) Verify(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	code, ok := h.bindCode(c)
	if !ok {
		return
	}

	session, err := h.mfa.StepUp(c.Request.Context(), userID, code)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, session)
}

func (h *MFAHandler) Disable(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	code, ok := h.bindCode(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Disabling mfa", "user_id", userID)

	if err := h.mfa.Disable(c.Request.Context(), userID, code); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondMessage(c, "İki adımlı doğrulama devre dışı bırakıldı")
}

func (h *MFAHandler) RegenerateBackupCodes(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	code, ok := h.bindCode(c)
	if !ok {
		return
	}

	codes, err := h.mfa.RegenerateBackupCodes(c.Request.Context(), userID, code)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, codes)
}

// CompleteLogin exchanges an MFA challenge token and a code for a full session
// @Summary Complete MFA login
// @Tags auth
// @Param body body models.MFACompleteRequest true "Challenge token and code"
// @Success 200 {object} SuccessResponse{data=services.SessionResponse}
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/mfa/complete [post]
func (h *MFAHandler) CompleteLogin(c *gin.Context) {
	var req models.MFACompleteRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	session, err := h.mfa.CompleteLogin(c.Request.Context(), req.MFAToken, req.Code)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, session)
}
