package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

// streakLookback bounds how far back the learning streak is computed
const streakLookback = 365 * 24 * time.Hour

type progressService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	now       func() time.Time
}

func NewProgressService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) ProgressService {
	return &progressService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *progressService) CompleteLesson(ctx context.Context, userID, lessonID string) (*LessonCompletionResult, error) {
	s.logger.Info("Completing lesson", "user_id", userID, "lesson_id", lessonID)

	lesson, enrollment, err := s.loadLessonForLearner(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	result := &LessonCompletionResult{}
	justCompleted := false
	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		progress, err := s.getOrNewProgress(ctx, tx, userID, lesson)
		if err != nil {
			return err
		}
		now := s.now()
		if !progress.Completed {
			progress.Completed = true
			progress.CompletedAt = &now
			if err := s.repo.Progress().Save(ctx, tx, progress); err != nil {
				return fmt.Errorf("failed to save progress: %w", err)
			}
		}
		result.Progress = progress

		pct, err := s.recompute(ctx, tx, enrollment)
		if err != nil {
			return err
		}
		result.ProgressPercent = pct

		if pct >= 100 && enrollment.Status != models.EnrollmentCompleted {
			enrollment.Status = models.EnrollmentCompleted
			enrollment.CompletedAt = &now
			justCompleted = true
		}
		enrollment.LastAccessedAt = &now
		if err := s.repo.Enrollment().Update(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("failed to update enrollment: %w", err)
		}

		if enrollment.Status == models.EnrollmentCompleted {
			cert, err := s.ensureCertificate(ctx, tx, userID, enrollment.CourseID)
			if err != nil {
				return err
			}
			result.Certificate = cert
			result.CourseCompleted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if justCompleted {
		title := ""
		if course, err := getCourse(ctx, s.repo, s.db, enrollment.CourseID); err == nil {
			title = course.Title
		}
		publishEvent(ctx, s.publisher, s.logger, events.EventCourseCompleted, userID, events.CourseCompletedData{
			CourseID:          enrollment.CourseID,
			CourseTitle:       title,
			CertificateNumber: result.Certificate.CertificateNumber,
		})
		s.logger.Info("Course completed", "user_id", userID, "course_id", enrollment.CourseID)
	}
	return result, nil
}

func (s *progressService) UpdatePosition(ctx context.Context, userID, lessonID string, req *models.UpdatePositionRequest) (*models.LessonProgress, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	lesson, enrollment, err := s.loadLessonForLearner(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	var progress *models.LessonProgress
	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		progress, err = s.getOrNewProgress(ctx, tx, userID, lesson)
		if err != nil {
			return err
		}
		progress.LastPositionSeconds = req.PositionSeconds
		progress.WatchSeconds += req.WatchedSeconds
		if err := s.repo.Progress().Save(ctx, tx, progress); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}

		now := s.now()
		enrollment.LastAccessedAt = &now
		if err := s.repo.Enrollment().Update(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("failed to update enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

func (s *progressService) CourseProgress(ctx context.Context, userID, courseID string) (*CourseProgressResponse, error) {
	enrollment, err := s.repo.Enrollment().Get(ctx, s.db, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	lessons, err := s.repo.Lesson().ListByCourse(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	records, err := s.repo.Progress().ListByCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	byLesson := make(map[string]*models.LessonProgress, len(records))
	for _, p := range records {
		byLesson[p.LessonID] = p
	}

	resp := &CourseProgressResponse{
		CourseID:        courseID,
		Status:          enrollment.Status,
		ProgressPercent: enrollment.ProgressPercent,
		TotalLessons:    int64(len(lessons)),
		Lessons:         make([]LessonProgressItem, 0, len(lessons)),
	}
	for _, lesson := range lessons {
		item := LessonProgressItem{
			LessonID:        lesson.ID,
			ModuleID:        lesson.ModuleID,
			Title:           lesson.Title,
			DurationMinutes: lesson.DurationMinutes,
		}
		if p, ok := byLesson[lesson.ID]; ok {
			item.Completed = p.Completed
			item.CompletedAt = p.CompletedAt
			item.LastPositionSeconds = p.LastPositionSeconds
			item.WatchSeconds = p.WatchSeconds
		}
		if item.Completed {
			resp.CompletedLessons++
		} else if resp.NextLessonID == nil {
			id := lesson.ID
			resp.NextLessonID = &id
		}
		resp.Lessons = append(resp.Lessons, item)
	}
	return resp, nil
}

func (s *progressService) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	enrollments, err := s.repo.Enrollment().ListByUser(ctx, s.db, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	stats := &UserStats{}
	for _, e := range enrollments {
		switch e.Status {
		case models.EnrollmentActive:
			stats.EnrolledCourses++
			stats.InProgressCourses++
		case models.EnrollmentCompleted:
			stats.EnrolledCourses++
			stats.CompletedCourses++
		}
	}

	totals, err := s.repo.Progress().Totals(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get learning totals: %w", err)
	}
	stats.CompletedLessons = totals.CompletedLessons
	stats.TotalWatchMinutes = totals.WatchSeconds / 60

	quizzes, err := s.repo.QuizAttempt().Summary(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz summary: %w", err)
	}
	stats.AverageQuizPercentage = roundFloat(quizzes.AveragePercentage, 2)
	stats.PassedQuizzes = quizzes.PassedQuizzes

	certs, err := s.repo.Certificate().ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	stats.Certificates = int64(len(certs))

	now := s.now().UTC()
	days, err := s.repo.Progress().ActivityDays(ctx, s.db, userID, now.Add(-streakLookback))
	if err != nil {
		return nil, fmt.Errorf("failed to get activity days: %w", err)
	}
	stats.CurrentStreak = learningStreak(days, now)

	return stats, nil
}

func (s *progressService) Certificates(ctx context.Context, userID string) ([]*models.Certificate, error) {
	certs, err := s.repo.Certificate().ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, nil
}

// ===== HELPERS =====

// loadLessonForLearner returns the lesson and the enrollment that unlocks it
func (s *progressService) loadLessonForLearner(ctx context.Context, userID, lessonID string) (*models.CourseLesson, *models.Enrollment, error) {
	lesson, err := s.repo.Lesson().GetByID(ctx, s.db, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrLessonNotFound
		}
		return nil, nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	enrollment, err := s.repo.Enrollment().Get(ctx, s.db, userID, lesson.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrNotEnrolled
		}
		return nil, nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if !enrollment.GrantsAccess(s.now()) {
		return nil, nil, ErrNotEnrolled
	}
	return lesson, enrollment, nil
}

func (s *progressService) getOrNewProgress(ctx context.Context, tx *gorm.DB, userID string, lesson *models.CourseLesson) (*models.LessonProgress, error) {
	progress, err := s.repo.Progress().Get(ctx, tx, userID, lesson.ID)
	if err == nil {
		return progress, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return &models.LessonProgress{
		UserID:   userID,
		LessonID: lesson.ID,
		CourseID: lesson.CourseID,
	}, nil
}

// recompute stores the rounded completion percentage on the enrollment
func (s *progressService) recompute(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) (float64, error) {
	completed, err := s.repo.Progress().CountCompleted(ctx, tx, enrollment.UserID, enrollment.CourseID)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed lessons: %w", err)
	}
	total, err := s.repo.Lesson().CountByCourse(ctx, tx, enrollment.CourseID)
	if err != nil {
		return 0, fmt.Errorf("failed to count lessons: %w", err)
	}

	pct := progressPercent(completed, total)
	enrollment.ProgressPercent = pct
	return pct, nil
}

func progressPercent(completed, total int64) float64 {
	if completed > total {
		completed = total
	}
	return percentage(completed, total)
}

func (s *progressService) ensureCertificate(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Certificate, error) {
	cert, err := s.repo.Certificate().Get(ctx, tx, userID, courseID)
	if err == nil {
		return cert, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	now := s.now()
	cert = &models.Certificate{
		UserID:            userID,
		CourseID:          courseID,
		CertificateNumber: certificateNumber(now),
		IssuedAt:          now,
	}
	if err := s.repo.Certificate().Create(ctx, tx, cert); err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}
	return cert, nil
}

// certificateNumber formats 7P-YYYY-XXXXXXXX with a random hex suffix
func certificateNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("7P-%d-%s", at.Year(), suffix)
}

// learningStreak counts consecutive active days ending today or yesterday.
// days must be distinct UTC dates, newest first.
func learningStreak(days []time.Time, now time.Time) int {
	if len(days) == 0 {
		return 0
	}
	today := truncateDay(now)
	expected := today
	if first := truncateDay(days[0]); first.Before(today) {
		expected = today.AddDate(0, 0, -1)
	}

	streak := 0
	for _, d := range days {
		day := truncateDay(d)
		if !day.Equal(expected) {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
