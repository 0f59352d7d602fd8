package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// IsNotFoundError reports whether err is a missing-row error from any layer
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports a unique constraint violation
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey)
}

// Repository aggregates every aggregate repository of the platform
type Repository interface {
	User() UserRepository

	// Catalog
	Course() CourseRepository
	Module() ModuleRepository
	Lesson() LessonRepository
	Review() ReviewRepository

	// Learning
	Enrollment() EnrollmentRepository
	Progress() ProgressRepository
	Certificate() CertificateRepository
	Quiz() QuizRepository
	QuizAttempt() QuizAttemptRepository

	// Billing
	Payment() PaymentRepository
	Subscription() SubscriptionRepository

	MFA() MFARepository
	Dashboard() DashboardRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
