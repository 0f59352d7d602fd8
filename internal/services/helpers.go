package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

// withTx runs fn in a transaction; without a database handle fn gets nil and
// repositories fall back to their own connection.
func withTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

func roundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

func percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return roundFloat(float64(part)/float64(total)*100, 2)
}

func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return fmt.Sprintf("%d saniye önce", int(duration.Seconds()))
	case duration < time.Hour:
		return fmt.Sprintf("%d dakika önce", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%d saat önce", int(duration.Hours()))
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%d gün önce", int(duration.Hours()/24))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%d hafta önce", int(duration.Hours()/(24*7)))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%d ay önce", int(duration.Hours()/(24*30)))
	default:
		return fmt.Sprintf("%d yıl önce", int(duration.Hours()/(24*365)))
	}
}

func getUser(ctx context.Context, repo repositories.Repository, tx *gorm.DB, userID string) (*models.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := repo.User().GetByID(ctx, tx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func getCourse(ctx context.Context, repo repositories.Repository, tx *gorm.DB, courseID string) (*models.Course, error) {
	course, err := repo.Course().GetByID(ctx, tx, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

// canManageCourse is true for the course instructor and admins
func canManageCourse(user *models.User, course *models.Course) bool {
	if user == nil || course == nil {
		return false
	}
	return user.IsAdmin() || (user.Role == models.RoleInstructor && course.InstructorID == user.ID)
}

// hasCourseAccess reports whether the user may see full course content
func hasCourseAccess(ctx context.Context, repo repositories.Repository, tx *gorm.DB, user *models.User, course *models.Course, now time.Time) (bool, error) {
	if user == nil {
		return false, nil
	}
	if canManageCourse(user, course) {
		return true, nil
	}
	enrollment, err := repo.Enrollment().Get(ctx, tx, user.ID, course.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment.GrantsAccess(now), nil
}

// publishEvent emits an event after commit; delivery failures are logged, not returned
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, eventType events.EventType, userID string, data interface{}) {
	if publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, userID, data)
	if err != nil {
		logger.Error("Failed to build event", "type", eventType, "error", err)
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish event", "type", eventType, "event_id", event.ID, "error", err)
	}
}
