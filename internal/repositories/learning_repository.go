package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
)

type EnrollmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
	Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Enrollment, error)
	Update(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, status *models.EnrollmentStatus) ([]*models.Enrollment, error)
	CountByCourse(ctx context.Context, tx *gorm.DB, courseID string) (int64, error)
	// ExpireOverdue expires active enrollments past expires_at and returns how many expired per course
	ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (map[string]int64, error)
}

// UserLearningTotals aggregates lesson progress for one user
type UserLearningTotals struct {
	CompletedLessons int64
	WatchSeconds     int64
}

type ProgressRepository interface {
	Get(ctx context.Context, tx *gorm.DB, userID, lessonID string) (*models.LessonProgress, error)
	Save(ctx context.Context, tx *gorm.DB, progress *models.LessonProgress) error
	ListByCourse(ctx context.Context, tx *gorm.DB, userID, courseID string) ([]*models.LessonProgress, error)
	CountCompleted(ctx context.Context, tx *gorm.DB, userID, courseID string) (int64, error)
	Totals(ctx context.Context, tx *gorm.DB, userID string) (*UserLearningTotals, error)
	// ActivityDays returns distinct UTC days with lesson activity since the given time, newest first
	ActivityDays(ctx context.Context, tx *gorm.DB, userID string, since time.Time) ([]time.Time, error)
}

type CertificateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, cert *models.Certificate) error
	Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Certificate, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Certificate, error)
}

type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Quiz, error)
	GetWithQuestions(ctx context.Context, tx *gorm.DB, id string) (*models.Quiz, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	AddQuestion(ctx context.Context, tx *gorm.DB, question *models.QuizQuestion) error
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.Quiz, error)
}

// QuizSummary aggregates quiz attempts for one user
type QuizSummary struct {
	AveragePercentage float64
	PassedQuizzes     int64
}

type QuizAttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	CountByUser(ctx context.Context, tx *gorm.DB, quizID, userID string) (int64, error)
	ListByUser(ctx context.Context, tx *gorm.DB, quizID, userID string) ([]*models.QuizAttempt, error)
	Best(ctx context.Context, tx *gorm.DB, quizID, userID string) (*models.QuizAttempt, error)
	Summary(ctx context.Context, tx *gorm.DB, userID string) (*QuizSummary, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Payment, error)
	GetByPaymentIntent(ctx context.Context, tx *gorm.DB, intentID string) (*models.Payment, error)
	GetByCheckoutSession(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Payment, error)
	Update(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Payment, error)
	HasSucceeded(ctx context.Context, tx *gorm.DB, userID, courseID string) (bool, error)
	FailStalePending(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error)
}

type SubscriptionRepository interface {
	GetByStripeID(ctx context.Context, tx *gorm.DB, stripeID string) (*models.Subscription, error)
	Save(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
	ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}
