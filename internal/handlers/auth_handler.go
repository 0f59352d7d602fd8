package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

const (
	oauthSessionName = "7p_oauth"
	oauthStateKey    = "state"
	oauthStateMaxAge = 600
)

// AuthHandler serves the current principal and the Google sign-in redirects
type AuthHandler struct {
	BaseHandler
	sso         services.SSOService
	store       sessions.Store
	frontendURL string
}

// NewAuthHandler keeps the OAuth state in a signed cookie scoped to the auth routes
func NewAuthHandler(sso services.SSOService, cookieSecret, frontendURL string, secure bool, logger utils.Logger, reporter reporting.Reporter) *AuthHandler {
	store := sessions.NewCookieStore([]byte(cookieSecret))
	store.Options = &sessions.Options{
		Path:     "/api/v1/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &AuthHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		sso:         sso,
		store:       store,
		frontendURL: frontendURL,
	}
}

// Me returns the authenticated user
// @Summary Current user
// @Tags auth
// @Success 200 {object} SuccessResponse{data=models.User}
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := GetUserFromContext(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Oturum açmanız gerekiyor", nil)
		return
	}
	respondOK(c, user)
}

// GoogleLogin redirects to the Google consent screen
// @Summary Start Google sign-in
// @Tags auth
// @Success 302
// @Failure 501 {object} ErrorResponse "Google sign-in not configured"
// @Router /auth/google [get]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if !h.sso.Configured() {
		h.handleServiceError(c, services.ErrSSONotConfigured)
		return
	}

	state := uuid.NewString()
	session, _ := h.store.Get(c.Request, oauthSessionName)
	session.Values[oauthStateKey] = state
	if err := session.Save(c.Request, c.Writer); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Redirect(http.StatusFound, h.sso.AuthURL(state))
}

// GoogleCallback completes Google sign-in and hands the session to the frontend in the URL fragment
// @Summary Google sign-in callback
// @Tags auth
// @Param state query string true "OAuth state"
// @Param code query string true "Authorization code"
// @Success 302
// @Failure 400 {object} ErrorResponse "State mismatch"
// @Router /auth/google/callback [get]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	session, _ := h.store.Get(c.Request, oauthSessionName)
	expected, _ := session.Values[oauthStateKey].(string)
	state := c.Query("state")

	// The state is single use
	delete(session.Values, oauthStateKey)
	session.Options.MaxAge = -1
	_ = session.Save(c.Request, c.Writer)

	if expected == "" || state != expected {
		h.LogRequest(c, "Rejected google callback with invalid state")
		respondError(c, http.StatusBadRequest, "invalid_state", "Geçersiz oturum durumu, lütfen tekrar giriş yapın", nil)
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.redirectToFrontend(c, url.Values{"error": {providerErr}})
		return
	}

	result, err := h.sso.HandleCallback(c.Request.Context(), c.Query("code"))
	if err != nil {
		h.LogError(c, err, "Google sign-in failed")
		h.redirectToFrontend(c, url.Values{"error": {"sso_failed"}})
		return
	}

	if result.MFARequired {
		h.redirectToFrontend(c, url.Values{"mfa_token": {result.MFAToken}})
		return
	}
	h.redirectToFrontend(c, url.Values{"token": {result.Session.Token}})
}

func (h *AuthHandler) redirectToFrontend(c *gin.Context, fragment url.Values) {
	c.Redirect(http.StatusFound, h.frontendURL+"/auth/callback#"+fragment.Encode())
}
