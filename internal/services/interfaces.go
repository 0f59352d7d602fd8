package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

// ===== CATALOG DTOs =====

type CourseDetailResponse struct {
	*models.Course
	Enrolled    bool `json:"enrolled"`
	HasAccess   bool `json:"has_access"`
	CanEdit     bool `json:"can_edit"`
	LessonCount int  `json:"lesson_count"`
}

type VideoURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ===== LEARNING DTOs =====

type LessonProgressItem struct {
	LessonID            string     `json:"lesson_id"`
	ModuleID            string     `json:"module_id"`
	Title               string     `json:"title"`
	DurationMinutes     int        `json:"duration_minutes"`
	Completed           bool       `json:"completed"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	LastPositionSeconds int        `json:"last_position_seconds"`
	WatchSeconds        int        `json:"watch_seconds"`
}

type CourseProgressResponse struct {
	CourseID         string                  `json:"course_id"`
	Status           models.EnrollmentStatus `json:"status"`
	ProgressPercent  float64                 `json:"progress_percent"`
	CompletedLessons int64                   `json:"completed_lessons"`
	TotalLessons     int64                   `json:"total_lessons"`
	NextLessonID     *string                 `json:"next_lesson_id"`
	Lessons          []LessonProgressItem    `json:"lessons"`
}

type LessonCompletionResult struct {
	Progress        *models.LessonProgress `json:"progress"`
	ProgressPercent float64                `json:"progress_percent"`
	CourseCompleted bool                   `json:"course_completed"`
	Certificate     *models.Certificate    `json:"certificate,omitempty"`
}

type UserStats struct {
	EnrolledCourses       int64   `json:"enrolled_courses"`
	CompletedCourses      int64   `json:"completed_courses"`
	InProgressCourses     int64   `json:"in_progress_courses"`
	CompletedLessons      int64   `json:"completed_lessons"`
	TotalWatchMinutes     int64   `json:"total_watch_minutes"`
	AverageQuizPercentage float64 `json:"average_quiz_percentage"`
	PassedQuizzes         int64   `json:"passed_quizzes"`
	Certificates          int64   `json:"certificates"`
	CurrentStreak         int     `json:"current_streak"`
}

// ===== QUIZ DTOs =====

type QuestionForTaking struct {
	ID      string              `json:"id"`
	Type    models.QuestionType `json:"type"`
	Text    string              `json:"text"`
	Options []models.QuizOption `json:"options,omitempty"`
	Points  int                 `json:"points"`
}

type QuizForTaking struct {
	ID               string              `json:"id"`
	CourseID         string              `json:"course_id"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	PassingScore     int                 `json:"passing_score"`
	TimeLimitMinutes int                 `json:"time_limit_minutes"`
	MaxAttempts      int                 `json:"max_attempts"`
	AttemptsUsed     int64               `json:"attempts_used"`
	Questions        []QuestionForTaking `json:"questions"`
}

type QuestionResult struct {
	QuestionID     string          `json:"question_id"`
	Correct        bool            `json:"correct"`
	PointsEarned   float64         `json:"points_earned"`
	PointsPossible int             `json:"points_possible"`
	Submitted      json.RawMessage `json:"submitted,omitempty"`
	CorrectAnswer  json.RawMessage `json:"correct_answer"`
	Explanation    string          `json:"explanation,omitempty"`
}

type QuizResult struct {
	Attempt *models.QuizAttempt `json:"attempt"`
	Results []QuestionResult    `json:"results"`
}

// ===== PAYMENT DTOs =====

type CheckoutResponse struct {
	PaymentID string `json:"payment_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type IntentResponse struct {
	PaymentID    string `json:"payment_id"`
	ClientSecret string `json:"client_secret"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

// ===== AUTH DTOs =====

type MFASetupResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

type MFAStatusResponse struct {
	Enabled              bool       `json:"enabled"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	RemainingBackupCodes int64      `json:"remaining_backup_codes"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// LoginResult is either a session or, for MFA users, a challenge token
type LoginResult struct {
	Session     *SessionResponse `json:"session,omitempty"`
	MFARequired bool             `json:"mfa_required"`
	MFAToken    string           `json:"mfa_token,omitempty"`
}

// ===== ADMIN DTOs =====

type DashboardStats struct {
	PeriodDays           int     `json:"period_days"`
	TotalUsers           int64   `json:"total_users"`
	NewUsers             int64   `json:"new_users"`
	PublishedCourses     int64   `json:"published_courses"`
	TotalEnrollments     int64   `json:"total_enrollments"`
	CompletedEnrollments int64   `json:"completed_enrollments"`
	Revenue              float64 `json:"revenue"`
	CompletionRate       float64 `json:"completion_rate"`
	AverageQuizScore     float64 `json:"average_quiz_score"`

	UsersTrend       float64 `json:"users_trend"`
	EnrollmentsTrend float64 `json:"enrollments_trend"`
	RevenueTrend     float64 `json:"revenue_trend"`
}

type RevenueTrendResponse struct {
	Period string                      `json:"period"`
	Bucket string                      `json:"bucket"`
	Points []repositories.RevenuePoint `json:"points"`
	Total  float64                     `json:"total"`
}

type RecentEnrollmentItem struct {
	repositories.RecentEnrollmentData
	TimeAgo string `json:"time_ago"`
}

type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ===== SERVICE INTERFACES =====

type UserService interface {
	// SyncIdentity upserts the local user row for a verified token identity
	SyncIdentity(ctx context.Context, identity *auth.Identity) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, params models.UserListParams) (*models.PaginatedResponse, error)
	UpdateRole(ctx context.Context, adminID, userID string, role models.UserRole) (*models.User, error)
}

type CourseService interface {
	List(ctx context.Context, params models.CourseListParams) (*models.PaginatedResponse, error)
	GetBySlug(ctx context.Context, slug, viewerID string) (*CourseDetailResponse, error)
	Categories(ctx context.Context) ([]*models.CourseCategory, error)

	Create(ctx context.Context, req *models.CourseCreateRequest, userID string) (*models.Course, error)
	Update(ctx context.Context, courseID string, req *models.CourseUpdateRequest, userID string) (*models.Course, error)
	Delete(ctx context.Context, courseID, userID string) error
	Publish(ctx context.Context, courseID, userID string) (*models.Course, error)
	Archive(ctx context.Context, courseID, userID string) (*models.Course, error)

	CreateModule(ctx context.Context, courseID string, req *models.ModuleRequest, userID string) (*models.CourseModule, error)
	UpdateModule(ctx context.Context, moduleID string, req *models.ModuleRequest, userID string) (*models.CourseModule, error)
	DeleteModule(ctx context.Context, moduleID, userID string) error
	ReorderModules(ctx context.Context, courseID string, req *models.ReorderModulesRequest, userID string) error

	CreateLesson(ctx context.Context, moduleID string, req *models.LessonRequest, userID string) (*models.CourseLesson, error)
	UpdateLesson(ctx context.Context, lessonID string, req *models.LessonRequest, userID string) (*models.CourseLesson, error)
	DeleteLesson(ctx context.Context, lessonID, userID string) error
	LessonVideoURL(ctx context.Context, lessonID, userID string) (*VideoURLResponse, error)
}

type EnrollmentService interface {
	Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	// EnrollPaid activates access after a succeeded payment; it is idempotent
	EnrollPaid(ctx context.Context, userID, courseID, paymentID string) (*models.Enrollment, error)
	ListMine(ctx context.Context, userID string, status *models.EnrollmentStatus) ([]*models.Enrollment, error)
	Get(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Cancel(ctx context.Context, userID, courseID string) error
	HasAccess(ctx context.Context, userID, courseID string) (bool, error)
}

type ProgressService interface {
	CompleteLesson(ctx context.Context, userID, lessonID string) (*LessonCompletionResult, error)
	UpdatePosition(ctx context.Context, userID, lessonID string, req *models.UpdatePositionRequest) (*models.LessonProgress, error)
	CourseProgress(ctx context.Context, userID, courseID string) (*CourseProgressResponse, error)
	UserStats(ctx context.Context, userID string) (*UserStats, error)
	Certificates(ctx context.Context, userID string) ([]*models.Certificate, error)
}

type ReviewService interface {
	Upsert(ctx context.Context, userID, courseID string, req *models.ReviewRequest) (*models.CourseReview, error)
	List(ctx context.Context, slug string, page, size int) (*models.PaginatedResponse, error)
	// Delete removes authorID's review; only admins may delete someone else's
	Delete(ctx context.Context, actorID, courseID, authorID string) error
}

type QuizService interface {
	GetForTaking(ctx context.Context, userID, quizID string) (*QuizForTaking, error)
	Submit(ctx context.Context, userID, quizID string, req *models.SubmitQuizRequest) (*QuizResult, error)
	Attempts(ctx context.Context, userID, quizID string) ([]*models.QuizAttempt, error)
	BestAttempt(ctx context.Context, userID, quizID string) (*models.QuizAttempt, error)

	Create(ctx context.Context, courseID string, req *models.QuizCreateRequest, userID string) (*models.Quiz, error)
	AddQuestion(ctx context.Context, quizID string, req *models.QuestionCreateRequest, userID string) (*models.QuizQuestion, error)
	Delete(ctx context.Context, quizID, userID string) error
}

type PaymentService interface {
	Enabled() bool
	CreateCheckoutSession(ctx context.Context, userID, courseID string) (*CheckoutResponse, error)
	CreatePaymentIntent(ctx context.Context, userID, courseID string) (*IntentResponse, error)
	CreatePortalSession(ctx context.Context, userID string) (*PortalResponse, error)
	Refund(ctx context.Context, adminID, paymentID, reason string) (*models.Payment, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ListMine(ctx context.Context, userID string) ([]*models.Payment, error)
}

type MFAService interface {
	Setup(ctx context.Context, userID string) (*MFASetupResponse, error)
	VerifySetup(ctx context.Context, userID, code string) error
	Verify(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID, code string) error
	RegenerateBackupCodes(ctx context.Context, userID, code string) (*BackupCodesResponse, error)
	Status(ctx context.Context, userID string) (*MFAStatusResponse, error)
	IsEnabled(ctx context.Context, userID string) (bool, error)
	CompleteLogin(ctx context.Context, challengeToken, code string) (*SessionResponse, error)
	StepUp(ctx context.Context, userID, code string) (*SessionResponse, error)
}

type SSOService interface {
	Configured() bool
	AuthURL(state string) string
	HandleCallback(ctx context.Context, code string) (*LoginResult, error)
}

type DashboardService interface {
	Stats(ctx context.Context, periodDays int) (*DashboardStats, error)
	RevenueTrend(ctx context.Context, period string) (*RevenueTrendResponse, error)
	TopCourses(ctx context.Context, limit int) ([]repositories.TopCourseData, error)
	RecentEnrollments(ctx context.Context, limit int) ([]RecentEnrollmentItem, error)
	Export(ctx context.Context, kind string) (*ExportFile, error)
}

// NotificationService turns domain events into emails
type NotificationService interface {
	Register(router *events.Router)
	HandleEnrollmentCreated(ctx context.Context, event *events.Event) error
	HandlePaymentSucceeded(ctx context.Context, event *events.Event) error
	HandleCourseCompleted(ctx context.Context, event *events.Event) error
}

// MaintenanceService runs the periodic cleanup jobs
type MaintenanceService interface {
	ExpireEnrollments(ctx context.Context) (int64, error)
	ExpireSubscriptions(ctx context.Context) (int64, error)
	FailStalePayments(ctx context.Context) (int64, error)
}

type ServiceManager interface {
	User() UserService
	Course() CourseService
	Enrollment() EnrollmentService
	Progress() ProgressService
	Review() ReviewService
	Quiz() QuizService
	Payment() PaymentService
	MFA() MFAService
	SSO() SSOService
	Dashboard() DashboardService
	Notification() NotificationService
	Maintenance() MaintenanceService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
