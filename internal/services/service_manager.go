package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/notify"
	"github.com/7p-education/platform/internal/payments"
	"github.com/7p-education/platform/internal/ratelimit"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	Payments      ServiceConfig
	SSO           ServiceConfig
	Notifications ServiceConfig

	DefaultTimeout time.Duration
}

type ServiceConfig struct {
	Enabled bool
}

// Dependencies are the external collaborators services are built from.
// Nil members disable the feature that needs them.
type Dependencies struct {
	Config    *config.Config
	Publisher events.EventPublisher
	Gateway   payments.Gateway
	Mailer    notify.Mailer
	Sessions  *auth.Sessions
	SecretBox *auth.SecretBox
	Google    GoogleAuthenticator
	Limiter   ratelimit.Limiter
	Videos    VideoSigner
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	deps      Dependencies
	config    ServiceManagerConfig

	userService         UserService
	courseService       CourseService
	enrollmentService   EnrollmentService
	progressService     ProgressService
	reviewService       ReviewService
	quizService         QuizService
	paymentService      PaymentService
	mfaService          MFAService
	ssoService          SSOService
	dashboardService    DashboardService
	notificationService NotificationService
	maintenanceService  MaintenanceService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, deps Dependencies, cfg ServiceManagerConfig) ServiceManager {
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		deps:      deps,
		config:    cfg,
	}
}

// NewDefaultServiceManager enables the optional features whose dependencies are present
func NewDefaultServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, deps Dependencies) ServiceManager {
	stripeEnabled := deps.Config != nil && deps.Config.Stripe.Enabled
	cfg := ServiceManagerConfig{
		Payments:       ServiceConfig{Enabled: stripeEnabled && deps.Gateway != nil},
		SSO:            ServiceConfig{Enabled: deps.Google != nil},
		Notifications:  ServiceConfig{Enabled: deps.Mailer != nil},
		DefaultTimeout: 30 * time.Second,
	}
	return NewServiceManager(db, repo, logger, validator, deps, cfg)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.initializeServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := sm.validateServicesHealth(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) initializeServices(ctx context.Context) error {
	cfg := sm.deps.Config
	if sm.deps.Sessions == nil {
		return fmt.Errorf("session issuer is required")
	}
	if sm.deps.SecretBox == nil {
		return fmt.Errorf("MFA secret box is required")
	}

	sm.userService = NewUserService(sm.repo, sm.db, sm.logger, sm.validator)
	sm.courseService = NewCourseService(sm.repo, sm.db, sm.logger, sm.validator, sm.deps.Videos)
	sm.enrollmentService = NewEnrollmentService(sm.repo, sm.db, sm.logger, sm.validator, sm.deps.Publisher, cfg.EnrollmentAccess)
	sm.progressService = NewProgressService(sm.repo, sm.db, sm.logger, sm.validator, sm.deps.Publisher)
	sm.reviewService = NewReviewService(sm.repo, sm.db, sm.logger, sm.validator)
	sm.quizService = NewQuizService(sm.repo, sm.db, sm.logger, sm.validator, sm.deps.Publisher)
	sm.logger.Info("Learning services initialized")

	// The payment service always exists so disabled deployments answer with ErrPaymentsDisabled
	stripe := cfg.Stripe
	gateway := sm.deps.Gateway
	if !sm.config.Payments.Enabled {
		stripe.Enabled = false
		gateway = nil
	}
	sm.paymentService = NewPaymentService(sm.repo, sm.db, sm.logger, sm.validator, gateway, sm.enrollmentService, sm.deps.Publisher, stripe)
	sm.logger.Info("Payment service initialized", "enabled", sm.paymentService.Enabled())

	sm.mfaService = NewMFAService(sm.repo, sm.db, sm.logger, sm.deps.SecretBox, sm.deps.Sessions, sm.deps.Limiter, cfg.MFA)

	var google GoogleAuthenticator
	if sm.config.SSO.Enabled {
		google = sm.deps.Google
	}
	sm.ssoService = NewSSOService(sm.repo, sm.db, sm.logger, google, sm.deps.Sessions, sm.mfaService)
	sm.logger.Info("Auth services initialized", "sso", sm.ssoService.Configured())

	sm.dashboardService = NewDashboardService(sm.repo, sm.db, sm.logger)
	sm.maintenanceService = NewMaintenanceService(sm.repo, sm.db, sm.logger)

	if sm.config.Notifications.Enabled {
		sm.notificationService = NewNotificationService(sm.repo, sm.db, sm.logger, sm.deps.Mailer, cfg.FrontendURL)
		sm.logger.Info("Notification service initialized")
	}

	return nil
}

func (sm *serviceManager) validateServicesHealth(ctx context.Context) error {
	if sm.repo == nil {
		return fmt.Errorf("repository is not configured")
	}
	return nil
}

// ===== SERVICE GETTERS =====

func (sm *serviceManager) mustInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

func (sm *serviceManager) User() UserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.userService
}

func (sm *serviceManager) Course() CourseService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.courseService
}

func (sm *serviceManager) Enrollment() EnrollmentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.enrollmentService
}

func (sm *serviceManager) Progress() ProgressService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.progressService
}

func (sm *serviceManager) Review() ReviewService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.reviewService
}

func (sm *serviceManager) Quiz() QuizService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.quizService
}

func (sm *serviceManager) Payment() PaymentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.paymentService
}

func (sm *serviceManager) MFA() MFAService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.mfaService
}

func (sm *serviceManager) SSO() SSOService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.ssoService
}

func (sm *serviceManager) Dashboard() DashboardService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.dashboardService
}

// Notification is nil when no mailer is configured
func (sm *serviceManager) Notification() NotificationService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.notificationService
}

func (sm *serviceManager) Maintenance() MaintenanceService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustInitialized()
	return sm.maintenanceService
}

// ===== HEALTH AND LIFECYCLE =====

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if sm.config.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sm.config.DefaultTimeout)
		defer cancel()
	}
	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if repoManager, ok := sm.repo.(repositories.RepositoryManager); ok {
		if err := repoManager.Shutdown(ctx); err != nil {
			sm.logger.Error("Failed to shutdown repository manager", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
