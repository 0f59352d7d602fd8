package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

type reviewService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

func NewReviewService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) ReviewService {
	return &reviewService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

func (s *reviewService) Upsert(ctx context.Context, userID, courseID string, req *models.ReviewRequest) (*models.CourseReview, error) {
	s.logger.Info("Saving review", "user_id", userID, "course_id", courseID, "rating", req.Rating)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := getCourse(ctx, s.repo, s.db, courseID); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.Enrollment().Get(ctx, s.db, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if !enrollment.GrantsAccess(s.now()) {
		return nil, ErrNotEnrolled
	}

	var review *models.CourseReview
	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		existing, err := s.repo.Review().Get(ctx, tx, userID, courseID)
		switch {
		case err == nil:
			review = existing
		case repositories.IsNotFoundError(err):
			review = &models.CourseReview{UserID: userID, CourseID: courseID, IsApproved: true}
		default:
			return fmt.Errorf("failed to get review: %w", err)
		}

		review.Rating = req.Rating
		review.Comment = strings.TrimSpace(req.Comment)
		if err := s.repo.Review().Save(ctx, tx, review); err != nil {
			return fmt.Errorf("failed to save review: %w", err)
		}
		return s.refreshRating(ctx, tx, courseID)
	})
	if err != nil {
		return nil, err
	}
	s.repo.Course().InvalidateCache(ctx, courseID)
	return review, nil
}

func (s *reviewService) List(ctx context.Context, slug string, page, size int) (*models.PaginatedResponse, error) {
	course, err := s.repo.Course().GetBySlug(ctx, s.db, slug)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	page, size = models.NormalizePage(page, size)
	reviews, total, err := s.repo.Review().ListByCourse(ctx, s.db, course.ID, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return models.NewPaginatedResponse(reviews, total, page, size), nil
}

func (s *reviewService) Delete(ctx context.Context, actorID, courseID, authorID string) error {
	if authorID == "" {
		authorID = actorID
	}
	s.logger.Info("Deleting review", "actor_id", actorID, "author_id", authorID, "course_id", courseID)

	if authorID != actorID {
		actor, err := getUser(ctx, s.repo, s.db, actorID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return NewPermissionError(actorID, courseID, "review", "delete", "not the review author")
		}
	}

	err := withTx(ctx, s.db, func(tx *gorm.DB) error {
		review, err := s.repo.Review().Get(ctx, tx, authorID, courseID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrReviewNotFound
			}
			return fmt.Errorf("failed to get review: %w", err)
		}
		if err := s.repo.Review().Delete(ctx, tx, review.ID); err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}
		return s.refreshRating(ctx, tx, courseID)
	})
	if err != nil {
		return err
	}
	s.repo.Course().InvalidateCache(ctx, courseID)
	return nil
}

func (s *reviewService) refreshRating(ctx context.Context, tx *gorm.DB, courseID string) error {
	avg, count, err := s.repo.Review().Aggregate(ctx, tx, courseID)
	if err != nil {
		return fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	if err := s.repo.Course().UpdateRating(ctx, tx, courseID, roundFloat(avg, 2), int(count)); err != nil {
		return fmt.Errorf("failed to update course rating: %w", err)
	}
	return nil
}
