package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

type enrollmentService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	access    time.Duration
	now       func() time.Time
}

// NewEnrollmentService creates the enrollment service. A positive access period
// stamps expires_at on every activation.
func NewEnrollmentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, access time.Duration) EnrollmentService {
	return &enrollmentService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		access:    access,
		now:       time.Now,
	}
}

func (s *enrollmentService) expiresAt(from time.Time) *time.Time {
	if s.access <= 0 {
		return nil
	}
	t := from.Add(s.access)
	return &t
}

func (s *enrollmentService) Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	s.logger.Info("Enrolling user", "user_id", userID, "course_id", courseID)

	course, err := getCourse(ctx, s.repo, s.db, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublished() {
		return nil, ErrCourseNotPublished
	}

	if !course.IsFree() {
		paid, err := s.repo.Payment().HasSucceeded(ctx, s.db, userID, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to check payment: %w", err)
		}
		if !paid {
			return nil, ErrPaymentRequired
		}
	}

	enrollment, err := s.activate(ctx, userID, course, nil)
	if err != nil {
		return nil, err
	}
	s.publishCreated(ctx, enrollment, course)

	s.logger.Info("User enrolled successfully", "user_id", userID, "course_id", courseID, "enrollment_id", enrollment.ID)
	return enrollment, nil
}

func (s *enrollmentService) EnrollPaid(ctx context.Context, userID, courseID, paymentID string) (*models.Enrollment, error) {
	s.logger.Info("Enrolling user after payment", "user_id", userID, "course_id", courseID, "payment_id", paymentID)

	course, err := getCourse(ctx, s.repo, s.db, courseID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Enrollment().Get(ctx, s.db, userID, courseID)
	if err == nil && existing.GrantsAccess(s.now()) {
		// Webhooks are retried; keep the first enrollment
		if existing.PaymentID == nil {
			existing.PaymentID = &paymentID
			if err := s.repo.Enrollment().Update(ctx, s.db, existing); err != nil {
				return nil, fmt.Errorf("failed to link payment: %w", err)
			}
		}
		return existing, nil
	}
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	enrollment, err := s.activate(ctx, userID, course, &paymentID)
	if err != nil {
		return nil, err
	}
	s.publishCreated(ctx, enrollment, course)
	return enrollment, nil
}

// activate creates the enrollment or reactivates a cancelled or expired one
func (s *enrollmentService) activate(ctx context.Context, userID string, course *models.Course, paymentID *string) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := withTx(ctx, s.db, func(tx *gorm.DB) error {
		now := s.now()
		counted := false
		existing, err := s.repo.Enrollment().Get(ctx, tx, userID, course.ID)
		switch {
		case err == nil:
			if existing.GrantsAccess(now) {
				return ErrAlreadyEnrolled
			}
			// active rows past expires_at that the sweeper has not reached yet are still counted
			counted = existing.Counted()
			existing.Status = models.EnrollmentActive
			existing.EnrolledAt = now
			existing.ExpiresAt = s.expiresAt(now)
			existing.CompletedAt = nil
			if paymentID != nil {
				existing.PaymentID = paymentID
			}
			if err := s.repo.Enrollment().Update(ctx, tx, existing); err != nil {
				return fmt.Errorf("failed to reactivate enrollment: %w", err)
			}
			enrollment = existing
		case repositories.IsNotFoundError(err):
			enrollment = &models.Enrollment{
				UserID:     userID,
				CourseID:   course.ID,
				Status:     models.EnrollmentActive,
				EnrolledAt: now,
				ExpiresAt:  s.expiresAt(now),
				PaymentID:  paymentID,
			}
			if err := s.repo.Enrollment().Create(ctx, tx, enrollment); err != nil {
				if repositories.IsDuplicateError(err) {
					return ErrAlreadyEnrolled
				}
				return fmt.Errorf("failed to create enrollment: %w", err)
			}
		default:
			return fmt.Errorf("failed to get enrollment: %w", err)
		}

		if counted {
			return nil
		}
		if err := s.repo.Course().IncrementEnrollmentCount(ctx, tx, course.ID, 1); err != nil {
			return fmt.Errorf("failed to update enrollment count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.repo.Course().InvalidateCache(ctx, course.ID)
	return enrollment, nil
}

func (s *enrollmentService) publishCreated(ctx context.Context, enrollment *models.Enrollment, course *models.Course) {
	publishEvent(ctx, s.publisher, s.logger, events.EventEnrollmentCreated, enrollment.UserID, events.EnrollmentCreatedData{
		EnrollmentID: enrollment.ID,
		CourseID:     course.ID,
		CourseTitle:  course.Title,
		CourseSlug:   course.Slug,
		Free:         course.IsFree(),
	})
}

func (s *enrollmentService) ListMine(ctx context.Context, userID string, status *models.EnrollmentStatus) ([]*models.Enrollment, error) {
	enrollments, err := s.repo.Enrollment().ListByUser(ctx, s.db, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

func (s *enrollmentService) Get(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.Enrollment().Get(ctx, s.db, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment, nil
}

func (s *enrollmentService) Cancel(ctx context.Context, userID, courseID string) error {
	s.logger.Info("Cancelling enrollment", "user_id", userID, "course_id", courseID)

	err := withTx(ctx, s.db, func(tx *gorm.DB) error {
		enrollment, err := s.repo.Enrollment().Get(ctx, tx, userID, courseID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrEnrollmentNotFound
			}
			return fmt.Errorf("failed to get enrollment: %w", err)
		}
		if enrollment.Status == models.EnrollmentCancelled {
			return nil
		}

		wasCounted := enrollment.Counted()
		enrollment.Status = models.EnrollmentCancelled
		if err := s.repo.Enrollment().Update(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("failed to cancel enrollment: %w", err)
		}
		if wasCounted {
			if err := s.repo.Course().IncrementEnrollmentCount(ctx, tx, courseID, -1); err != nil {
				return fmt.Errorf("failed to update enrollment count: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.repo.Course().InvalidateCache(ctx, courseID)
	return nil
}

func (s *enrollmentService) HasAccess(ctx context.Context, userID, courseID string) (bool, error) {
	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return false, err
	}
	course, err := getCourse(ctx, s.repo, s.db, courseID)
	if err != nil {
		return false, err
	}
	return hasCourseAccess(ctx, s.repo, s.db, user, course, s.now())
}
