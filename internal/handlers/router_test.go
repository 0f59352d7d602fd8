package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/services"
)

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"payment required", services.ErrPaymentRequired, http.StatusPaymentRequired, CodePaymentRequired, ""},
		{"already enrolled", services.ErrAlreadyEnrolled, http.StatusConflict, "already_enrolled", ""},
		{"not found", services.ErrCourseNotFound, http.StatusNotFound, CodeNotFound, "Kurs bulunamadı"},
		{"validation", services.NewValidationError("course_id", "required", ""), http.StatusBadRequest, CodeValidation, ""},
		{"permission", services.NewPermissionError("s1", "c1", "course", "enroll", "blocked"), http.StatusForbidden, CodeForbidden, ""},
		{"bare business rule", services.NewBusinessRuleError("free_course", "course is free", nil), http.StatusBadRequest, "free_course", "course is free"},
		{"business rule with sentinel", services.NewBusinessRuleError("refund_state", "only succeeded payments", services.ErrConflict), http.StatusConflict, CodeConflict, "only succeeded payments"},
		{"too many attempts", services.ErrTooManyAttempts, http.StatusTooManyRequests, CodeRateLimited, ""},
		{"payments disabled", services.ErrPaymentsDisabled, http.StatusNotImplemented, CodePaymentsDisabled, paymentsDisabledMessage},
		{"not published", services.ErrCourseNotPublished, http.StatusBadRequest, "course_not_published", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			srv.services.enrollments.err = tt.err

			rec := srv.do(http.MethodPost, "/api/v1/courses/c1/enroll", "student-token", "")
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
			assert.Empty(t, srv.reporter.errors)
		})
	}
}

func TestUnexpectedErrorIsReported(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.services.enrollments.err = errors.New("connection reset by peer")

	rec := srv.do(http.MethodPost, "/api/v1/courses/c1/enroll", "student-token", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, CodeInternal, resp.Error)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	require.Len(t, srv.reporter.errors, 1)
}

func TestEnrollSuccessEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/v1/courses/c1/enroll", "student-token", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    models.Enrollment `json:"data"`
		Message string            `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "s1", resp.Data.UserID)
	assert.Equal(t, "c1", resp.Data.CourseID)
	assert.NotEmpty(t, resp.Message)
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Error)

	rec = srv.do(http.MethodGet, "/api/v1/auth/me", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/auth/me", "student-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ogrenci@example.com"`)
}

func TestCatalogUsesOptionalAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/courses/go-temelleri", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "go-temelleri", srv.services.courses.lastSlug)
	assert.Empty(t, srv.services.courses.lastViewer)

	// an invalid token is ignored on public routes
	rec = srv.do(http.MethodGet, "/api/v1/courses/go-temelleri", "forged", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, srv.services.courses.lastViewer)

	rec = srv.do(http.MethodGet, "/api/v1/courses/go-temelleri", "student-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", srv.services.courses.lastViewer)

	rec = srv.do(http.MethodGet, "/api/v1/courses/yok", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleAndMFAGuards(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.services.mfa.enabled["a1"] = true

	rec := srv.do(http.MethodPost, "/api/v1/courses", "student-token", `{"title":"Yeni Kurs"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/admin/stats", "instructor-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, decodeError(t, rec).Error)

	rec = srv.do(http.MethodGet, "/api/v1/admin/stats", "admin-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeMFARequired, decodeError(t, rec).Error)

	rec = srv.do(http.MethodGet, "/api/v1/admin/stats?period=7", "admin-mfa-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"period_days":7`)

	// admins without MFA are not asked for it
	srv.services.mfa.enabled["a1"] = false
	rec = srv.do(http.MethodGet, "/api/v1/admin/stats", "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMFAVerifyUpgradesProviderSession(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.services.mfa.enabled["a1"] = true

	rec := srv.do(http.MethodPost, "/api/v1/mfa/verify", "admin-token", `{"code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidMFACode, decodeError(t, rec).Error)

	rec = srv.do(http.MethodPost, "/api/v1/mfa/verify", "admin-token", `{"code":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data services.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)
	assert.Equal(t, "a1", body.Data.User.ID)

	rec = srv.do(http.MethodGet, "/api/v1/admin/stats", "admin-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/admin/stats", body.Data.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentsDisabledAnswers501Everywhere(t *testing.T) {
	srv := newTestServer(t, nil)
	want := map[string]interface{}{
		"success": false,
		"error":   "payments_disabled",
		"message": "Ödeme sistemi şu anda devre dışı",
	}

	routes := []struct{ method, path, token string }{
		{http.MethodPost, "/api/v1/payments/webhook", ""},
		{http.MethodGet, "/api/v1/payments", ""},
		{http.MethodPost, "/api/v1/payments/checkout", "student-token"},
		{http.MethodPost, "/api/v1/payments/intent", "student-token"},
		{http.MethodPost, "/api/v1/payments/portal", "student-token"},
		{http.MethodPost, "/api/v1/payments/p1/refund", "admin-token"},
	}
	for _, r := range routes {
		rec := srv.do(r.method, r.path, r.token, "")
		assert.Equal(t, http.StatusNotImplemented, rec.Code, r.path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, want, body, r.path)
	}
}

func TestPaymentsEnabled(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.services.payments.enabled = true

	rec := srv.do(http.MethodGet, "/api/v1/payments", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/payments", "student-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/payments/webhook", "", `{"type":"payment_intent.succeeded"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.services.payments.webhookErr = services.NewValidationError("signature", "invalid webhook signature", "")
	rec = srv.do(http.MethodPost, "/api/v1/payments/webhook", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/payments/p1/refund", "student-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.AuthRequestsMin = 2
	})

	for i := 0; i < 2; i++ {
		rec := srv.do(http.MethodGet, "/api/v1/auth/me", "student-token", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := srv.do(http.MethodGet, "/api/v1/auth/me", "student-token", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, CodeRateLimited, decodeError(t, rec).Error)

	// the general limit is counted separately
	rec = srv.do(http.MethodGet, "/api/v1/courses/go-temelleri", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}

func TestGoogleSignIn(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/auth/google", "", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	srv.services.sso.configured = true
	srv.services.sso.result = &services.LoginResult{Session: &services.SessionResponse{Token: "session-token"}}

	rec = srv.do(http.MethodGet, "/api/v1/auth/google", "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	callback := func(state string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state="+state, nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		srv.engine.ServeHTTP(rec, req)
		return rec
	}

	rec = callback("tampered")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Error)

	rec = callback(state)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://7p.example/auth/callback#token=session-token", rec.Header().Get("Location"))

	srv.services.sso.result = &services.LoginResult{MFARequired: true, MFAToken: "challenge"}
	rec = callback(state)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Header().Get("Location"), "#mfa_token=challenge"))
}

func TestGoogleCallbackWithoutStateCookie(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.services.sso.configured = true

	rec := srv.do(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=whatever", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminExport(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/admin/export/payments", "admin-mfa-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="payments-20260615.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "xlsx", rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/v1/admin/export/grades", "admin-mfa-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndNoRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = srv.do(http.MethodGet, "/api/v1/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/go-temelleri", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
