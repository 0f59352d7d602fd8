package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/ratelimit"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
	"github.com/7p-education/platform/internal/validator"
)

// Options carries the infrastructure the HTTP layer needs besides the services
type Options struct {
	Config       *config.Config
	Validator    *validator.Validator
	Logger       utils.Logger
	Reporter     reporting.Reporter
	Verifier     auth.TokenVerifier
	Limiter      ratelimit.Limiter
	HealthChecks map[string]HealthCheck
}

type HandlerManager struct {
	courseHandler    *CourseHandler
	learningHandler  *LearningHandler
	quizHandler      *QuizHandler
	paymentHandler   *PaymentHandler
	mfaHandler       *MFAHandler
	authHandler      *AuthHandler
	dashboardHandler *DashboardHandler
	userHandler      *UserHandler
	healthHandler    *HealthHandler
	authMiddleware   *AuthMiddleware
	rateLimiter      *RateLimiter
	rateLimits       config.RateLimitConfig
}

func NewHandlerManager(serviceManager services.ServiceManager, opts Options) *HandlerManager {
	cfg := opts.Config
	logger, reporter := opts.Logger, opts.Reporter

	return &HandlerManager{
		courseHandler: NewCourseHandler(serviceManager.Course(), serviceManager.Review(), logger, reporter),
		learningHandler: NewLearningHandler(
			serviceManager.Enrollment(),
			serviceManager.Progress(),
			serviceManager.Review(),
			serviceManager.Course(),
			logger,
			reporter,
		),
		quizHandler:      NewQuizHandler(serviceManager.Quiz(), logger, reporter),
		paymentHandler:   NewPaymentHandler(serviceManager.Payment(), logger, reporter),
		mfaHandler:       NewMFAHandler(serviceManager.MFA(), opts.Validator, logger, reporter),
		authHandler:      NewAuthHandler(serviceManager.SSO(), cfg.Auth.CookieSecret, cfg.FrontendURL, cfg.IsProduction(), logger, reporter),
		dashboardHandler: NewDashboardHandler(serviceManager.Dashboard(), logger, reporter),
		userHandler:      NewUserHandler(serviceManager.User(), logger, reporter),
		healthHandler:    NewHealthHandler(opts.HealthChecks),
		authMiddleware:   NewAuthMiddleware(opts.Verifier, serviceManager.User(), serviceManager.MFA(), logger),
		rateLimiter:      NewRateLimiter(opts.Limiter, cfg.RateLimit.Enabled, logger),
		rateLimits:       cfg.RateLimit,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	am := hm.authMiddleware
	requireAuth := am.RequireAuth()
	authLimit := hm.rateLimiter.Limit("auth", hm.rateLimits.AuthRequestsMin)

	router.GET("/health", hm.healthHandler.Health)

	v1 := router.Group("/api/v1")
	v1.Use(hm.rateLimiter.Limit("api", hm.rateLimits.RequestsPerMin))
	{
		v1.GET("/health", hm.healthHandler.Health)

		// Auth routes
		authRoutes := v1.Group("/auth", authLimit)
		{
			authRoutes.GET("/me", requireAuth, hm.authHandler.Me)
			authRoutes.GET("/google", hm.authHandler.GoogleLogin)
			authRoutes.GET("/google/callback", hm.authHandler.GoogleCallback)
			authRoutes.POST("/mfa/complete", hm.mfaHandler.CompleteLogin)
		}

		// MFA management - code checking routes share the auth limit
		mfa := v1.Group("/mfa", requireAuth)
		{
			mfa.GET("/status", hm.mfaHandler.Status)
			mfa.POST("/setup", hm.mfaHandler.Setup)
			mfa.POST("/verify-setup", authLimit, hm.mfaHandler.VerifySetup)
			mfa.POST("/verify", authLimit, hm.mfaHandler.Verify)
			mfa.POST("/disable", authLimit, hm.mfaHandler.Disable)
			mfa.POST("/backup-codes", authLimit, hm.mfaHandler.RegenerateBackupCodes)
		}

		// Public catalog
		catalog := v1.Group("", am.OptionalAuth())
		{
			catalog.GET("/courses", hm.courseHandler.ListCourses)
			catalog.GET("/courses/:id", hm.courseHandler.GetCourse)
			catalog.GET("/courses/:id/reviews", hm.courseHandler.ListReviews)
			catalog.GET("/categories", hm.courseHandler.ListCategories)
		}

		// Course authoring - Instructors and Admins only
		authoring := v1.Group("", requireAuth, am.RequireRole(models.RoleInstructor))
		{
			authoring.POST("/courses", hm.courseHandler.CreateCourse)
			authoring.PUT("/courses/:id", hm.courseHandler.UpdateCourse)
			authoring.DELETE("/courses/:id", hm.courseHandler.DeleteCourse)
			authoring.POST("/courses/:id/publish", hm.courseHandler.PublishCourse)
			authoring.POST("/courses/:id/archive", hm.courseHandler.ArchiveCourse)
			authoring.POST("/courses/:id/modules", hm.courseHandler.CreateModule)
			authoring.PUT("/courses/:id/modules/order", hm.courseHandler.ReorderModules)
			authoring.PUT("/modules/:id", hm.courseHandler.UpdateModule)
			authoring.DELETE("/modules/:id", hm.courseHandler.DeleteModule)
			authoring.POST("/modules/:id/lessons", hm.courseHandler.CreateLesson)
			authoring.PUT("/lessons/:id", hm.courseHandler.UpdateLesson)
			authoring.DELETE("/lessons/:id", hm.courseHandler.DeleteLesson)

			authoring.POST("/courses/:id/quizzes", hm.quizHandler.CreateQuiz)
			authoring.POST("/quizzes/:id/questions", hm.quizHandler.AddQuestion)
			authoring.DELETE("/quizzes/:id", hm.quizHandler.DeleteQuiz)
		}

		// Learning - all authenticated users
		learning := v1.Group("", requireAuth)
		{
			learning.POST("/courses/:id/enroll", hm.learningHandler.Enroll)
			learning.DELETE("/courses/:id/enroll", hm.learningHandler.CancelEnrollment)
			learning.GET("/courses/:id/progress", hm.learningHandler.CourseProgress)
			learning.PUT("/courses/:id/review", hm.learningHandler.UpsertReview)
			learning.DELETE("/courses/:id/review", hm.learningHandler.DeleteReview)

			learning.POST("/lessons/:id/complete", hm.learningHandler.CompleteLesson)
			learning.PUT("/lessons/:id/position", hm.learningHandler.UpdatePosition)
			learning.GET("/lessons/:id/video", hm.learningHandler.LessonVideo)

			learning.GET("/me/enrollments", hm.learningHandler.MyEnrollments)
			learning.GET("/me/stats", hm.learningHandler.MyStats)
			learning.GET("/me/certificates", hm.learningHandler.MyCertificates)

			learning.GET("/quizzes/:id", hm.quizHandler.GetQuiz)
			learning.POST("/quizzes/:id/submit", hm.quizHandler.SubmitQuiz)
			learning.GET("/quizzes/:id/attempts", hm.quizHandler.ListAttempts)
		}

		// Payments - every route answers 501 while payments are disabled
		payments := v1.Group("/payments", hm.paymentHandler.Guard())
		{
			payments.POST("/webhook", hm.paymentHandler.Webhook)

			payments.GET("", requireAuth, hm.paymentHandler.ListPayments)
			payments.POST("/checkout", requireAuth, hm.paymentHandler.Checkout)
			payments.POST("/intent", requireAuth, hm.paymentHandler.Intent)
			payments.POST("/portal", requireAuth, hm.paymentHandler.Portal)
			payments.POST("/:id/refund", requireAuth, am.RequireRole(models.RoleAdmin), hm.paymentHandler.Refund)
		}

		// Admin - Admins only, MFA verified when enabled
		admin := v1.Group("/admin", requireAuth, am.RequireRole(models.RoleAdmin), am.RequireMFA())
		{
			admin.GET("/stats", hm.dashboardHandler.GetDashboardStats)
			admin.GET("/revenue", hm.dashboardHandler.GetRevenueTrend)
			admin.GET("/top-courses", hm.dashboardHandler.GetTopCourses)
			admin.GET("/recent-enrollments", hm.dashboardHandler.GetRecentEnrollments)
			admin.GET("/users", hm.userHandler.ListUsers)
			admin.PUT("/users/:id/role", hm.userHandler.UpdateUserRole)
			admin.GET("/export/:kind", hm.dashboardHandler.Export)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, CodeNotFound, "Kaynak bulunamadı", nil)
	})
}
