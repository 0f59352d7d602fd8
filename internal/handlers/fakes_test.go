package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/ratelimit"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
	"github.com/7p-education/platform/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Tokens understood by fakeVerifier
var testIdentities = map[string]*auth.Identity{
	"student-token":    {UserID: "s1", Email: "ogrenci@example.com", Role: models.RoleStudent},
	"instructor-token": {UserID: "i1", Email: "egitmen@example.com", Role: models.RoleInstructor},
	"admin-token":      {UserID: "a1", Email: "yonetici@example.com", Role: models.RoleAdmin},
	"admin-mfa-token":  {UserID: "a1", Email: "yonetici@example.com", Role: models.RoleAdmin, MFAVerified: true},
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if identity, ok := testIdentities[token]; ok {
		return identity, nil
	}
	return nil, auth.ErrInvalidToken
}

type fakeUsers struct {
	services.UserService
}

func (fakeUsers) SyncIdentity(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	return &models.User{ID: identity.UserID, Email: identity.Email, Role: identity.Role}, nil
}

type fakeMFA struct {
	services.MFAService
	enabled  map[string]bool
	sessions *auth.Sessions
}

func (m *fakeMFA) IsEnabled(ctx context.Context, userID string) (bool, error) {
	return m.enabled[userID], nil
}

// StepUp accepts 123456 and issues a real session so the token round-trips through the verifier chain
func (m *fakeMFA) StepUp(ctx context.Context, userID, code string) (*services.SessionResponse, error) {
	if !m.enabled[userID] {
		return nil, services.ErrMFANotEnabled
	}
	if code != "123456" {
		return nil, services.ErrInvalidMFACode
	}
	user := &models.User{ID: userID, Email: "yonetici@example.com", Role: models.RoleAdmin}
	token, expires, err := m.sessions.Issue(user, true)
	if err != nil {
		return nil, err
	}
	return &services.SessionResponse{Token: token, ExpiresAt: expires, User: user}, nil
}

type fakeCourses struct {
	services.CourseService
	lastSlug   string
	lastViewer string
}

func (f *fakeCourses) GetBySlug(ctx context.Context, slug, viewerID string) (*services.CourseDetailResponse, error) {
	f.lastSlug, f.lastViewer = slug, viewerID
	if slug == "yok" {
		return nil, services.ErrCourseNotFound
	}
	return &services.CourseDetailResponse{Course: &models.Course{ID: "c1", Slug: slug, Title: "Go Temelleri"}}, nil
}

type fakeEnrollments struct {
	services.EnrollmentService
	err error
}

func (f *fakeEnrollments) Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Enrollment{ID: "e1", UserID: userID, CourseID: courseID, Status: models.EnrollmentActive}, nil
}

type fakePayments struct {
	services.PaymentService
	enabled    bool
	webhookErr error
}

func (f *fakePayments) Enabled() bool { return f.enabled }

func (f *fakePayments) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return f.webhookErr
}

func (f *fakePayments) ListMine(ctx context.Context, userID string) ([]*models.Payment, error) {
	return []*models.Payment{}, nil
}

type fakeDashboard struct {
	services.DashboardService
}

func (fakeDashboard) Stats(ctx context.Context, periodDays int) (*services.DashboardStats, error) {
	return &services.DashboardStats{PeriodDays: periodDays, TotalUsers: 42}, nil
}

func (fakeDashboard) Export(ctx context.Context, kind string) (*services.ExportFile, error) {
	if kind != services.ExportPayments {
		return nil, services.NewValidationError("kind", "unsupported", kind)
	}
	return &services.ExportFile{
		Filename:    "payments-20260615.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        []byte("xlsx"),
	}, nil
}

type fakeSSO struct {
	configured bool
	result     *services.LoginResult
	err        error
}

func (f *fakeSSO) Configured() bool { return f.configured }

func (f *fakeSSO) AuthURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (f *fakeSSO) HandleCallback(ctx context.Context, code string) (*services.LoginResult, error) {
	return f.result, f.err
}

// fakeServiceManager hands out the fakes above; unused getters panic through the nil embed
type fakeServiceManager struct {
	services.ServiceManager
	users       *fakeUsers
	mfa         *fakeMFA
	courses     *fakeCourses
	enrollments *fakeEnrollments
	payments    *fakePayments
	dashboard   *fakeDashboard
	sso         *fakeSSO
}

func newFakeServiceManager() *fakeServiceManager {
	return &fakeServiceManager{
		users:       &fakeUsers{},
		mfa:         &fakeMFA{enabled: map[string]bool{}, sessions: auth.NewSessions("session-secret", time.Hour)},
		courses:     &fakeCourses{},
		enrollments: &fakeEnrollments{},
		payments:    &fakePayments{},
		dashboard:   &fakeDashboard{},
		sso:         &fakeSSO{},
	}
}

func (f *fakeServiceManager) User() services.UserService             { return f.users }
func (f *fakeServiceManager) MFA() services.MFAService               { return f.mfa }
func (f *fakeServiceManager) Course() services.CourseService         { return f.courses }
func (f *fakeServiceManager) Enrollment() services.EnrollmentService { return f.enrollments }
func (f *fakeServiceManager) Payment() services.PaymentService       { return f.payments }
func (f *fakeServiceManager) Dashboard() services.DashboardService   { return f.dashboard }
func (f *fakeServiceManager) SSO() services.SSOService               { return f.sso }
func (f *fakeServiceManager) Progress() services.ProgressService     { return nil }
func (f *fakeServiceManager) Review() services.ReviewService         { return nil }
func (f *fakeServiceManager) Quiz() services.QuizService             { return nil }

type recordingReporter struct {
	mu     sync.Mutex
	errors []error
}

func (r *recordingReporter) Error(err error, req *http.Request, extras map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingReporter) Close() {}

type testServer struct {
	engine   *gin.Engine
	services *fakeServiceManager
	reporter *recordingReporter
}

func newTestServer(t *testing.T, configure func(cfg *config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		FrontendURL: "https://7p.example",
		Auth:        config.AuthConfig{CookieSecret: "cookie-secret"},
		RateLimit:   config.RateLimitConfig{Enabled: false, RequestsPerMin: 100, AuthRequestsMin: 10},
	}
	if configure != nil {
		configure(cfg)
	}

	sm := newFakeServiceManager()
	reporter := &recordingReporter{}
	engine := gin.New()
	SetupMiddleware(engine, testLogger(), reporter)
	NewHandlerManager(sm, Options{
		Config:    cfg,
		Validator: validator.New(),
		Logger:    testLogger(),
		Reporter:  reporter,
		Verifier:  auth.NewChainVerifier(sm.mfa.sessions, fakeVerifier{}),
		Limiter:   ratelimit.NewMemoryLimiter(),
		HealthChecks: map[string]HealthCheck{
			"database": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return errors.New("redis: connection refused") },
		},
	}).SetupRoutes(engine)

	return &testServer{engine: engine, services: sm, reporter: reporter}
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
