package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

type dashboardRepository struct {
	baseRepository
}

func NewDashboardRepository(db *gorm.DB) repositories.DashboardRepository {
	return &dashboardRepository{baseRepository{db: db}}
}

func withRange(query *gorm.DB, column string, r repositories.TimeRange) *gorm.DB {
	if r.From != nil {
		query = query.Where(column+" >= ?", *r.From)
	}
	if r.To != nil {
		query = query.Where(column+" < ?", *r.To)
	}
	return query
}

// ===== COUNTS =====

func (r *dashboardRepository) CountUsers(ctx context.Context, tx *gorm.DB, tr repositories.TimeRange) (int64, error) {
	var count int64
	query := withRange(r.getDB(tx).WithContext(ctx).Model(&models.User{}), "created_at", tr)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *dashboardRepository) CountPublishedCourses(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := r.getDB(tx).WithContext(ctx).Model(&models.Course{}).
		Where("status = ?", models.CoursePublished).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return count, nil
}

func (r *dashboardRepository) CountEnrollments(ctx context.Context, tx *gorm.DB, tr repositories.TimeRange) (int64, error) {
	var count int64
	query := withRange(r.getDB(tx).WithContext(ctx).Model(&models.Enrollment{}), "enrolled_at", tr)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return count, nil
}

func (r *dashboardRepository) CountCompletedEnrollments(ctx context.Context, tx *gorm.DB, tr repositories.TimeRange) (int64, error) {
	var count int64
	query := r.getDB(tx).WithContext(ctx).Model(&models.Enrollment{}).
		Where("status = ?", models.EnrollmentCompleted)
	query = withRange(query, "enrolled_at", tr)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count completed enrollments: %w", err)
	}
	return count, nil
}

// ===== METRICS =====

func (r *dashboardRepository) NetRevenue(ctx context.Context, tx *gorm.DB, tr repositories.TimeRange) (float64, error) {
	var result struct {
		Succeeded float64
		Refunded  float64
	}
	query := r.getDB(tx).WithContext(ctx).Model(&models.Payment{}).
		Select(`COALESCE(SUM(amount) FILTER (WHERE status IN ?), 0) AS succeeded,
			COALESCE(SUM(amount) FILTER (WHERE status = ?), 0) AS refunded`,
			[]models.PaymentStatus{models.PaymentSucceeded, models.PaymentRefunded}, models.PaymentRefunded)
	query = withRange(query, "created_at", tr)
	if err := query.Scan(&result).Error; err != nil {
		return 0, fmt.Errorf("failed to get revenue: %w", err)
	}
	return result.Succeeded - result.Refunded, nil
}

func (r *dashboardRepository) AverageQuizPercentage(ctx context.Context, tx *gorm.DB, tr repositories.TimeRange) (float64, error) {
	var avg float64
	query := r.getDB(tx).WithContext(ctx).Model(&models.QuizAttempt{}).Select("COALESCE(AVG(percentage), 0)")
	query = withRange(query, "submitted_at", tr)
	if err := query.Scan(&avg).Error; err != nil {
		return 0, fmt.Errorf("failed to get average quiz score: %w", err)
	}
	return avg, nil
}

// ===== TRENDS =====

func (r *dashboardRepository) RevenueTrend(ctx context.Context, tx *gorm.DB, since time.Time, bucket string) ([]repositories.RevenuePoint, error) {
	switch bucket {
	case "day", "week", "month":
	default:
		return nil, fmt.Errorf("invalid revenue bucket %q", bucket)
	}

	var points []repositories.RevenuePoint
	err := r.getDB(tx).WithContext(ctx).Model(&models.Payment{}).
		Select("date_trunc(?, COALESCE(paid_at, created_at)) AS period, COALESCE(SUM(amount), 0) AS revenue, COUNT(*) AS payments", bucket).
		Where("status = ? AND COALESCE(paid_at, created_at) >= ?", models.PaymentSucceeded, since).
		Group("period").
		Order("period ASC").
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get revenue trend: %w", err)
	}
	return points, nil
}

func (r *dashboardRepository) TopCourses(ctx context.Context, tx *gorm.DB, limit int) ([]repositories.TopCourseData, error) {
	var rows []repositories.TopCourseData
	err := r.getDB(tx).WithContext(ctx).Table("courses c").
		Select(`c.id AS course_id, c.title, c.slug, c.rating_avg,
			(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS enrollments,
			(SELECT COALESCE(SUM(p.amount), 0) FROM payments p WHERE p.course_id = c.id AND p.status = ?) AS revenue`,
			models.PaymentSucceeded).
		Where("c.deleted_at IS NULL").
		Order("enrollments DESC, revenue DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get top courses: %w", err)
	}
	return rows, nil
}

func (r *dashboardRepository) RecentEnrollments(ctx context.Context, tx *gorm.DB, limit int) ([]repositories.RecentEnrollmentData, error) {
	var rows []repositories.RecentEnrollmentData
	err := r.getDB(tx).WithContext(ctx).Table("enrollments e").
		Select(`e.id AS enrollment_id, e.user_id, u.full_name AS user_name, u.email AS user_email,
			e.course_id, c.title AS course_title, e.status, e.enrolled_at`).
		Joins("JOIN users u ON u.id = e.user_id").
		Joins("JOIN courses c ON c.id = e.course_id").
		Order("e.enrolled_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent enrollments: %w", err)
	}
	return rows, nil
}

// ===== EXPORTS =====

func (r *dashboardRepository) EnrollmentExportRows(ctx context.Context, tx *gorm.DB) ([]repositories.EnrollmentExportRow, error) {
	var rows []repositories.EnrollmentExportRow
	err := r.getDB(tx).WithContext(ctx).Table("enrollments e").
		Select(`u.email AS user_email, u.full_name AS user_name, c.title AS course_title,
			e.status, e.progress_percent, e.enrolled_at, e.completed_at`).
		Joins("JOIN users u ON u.id = e.user_id").
		Joins("JOIN courses c ON c.id = e.course_id").
		Order("e.enrolled_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to export enrollments: %w", err)
	}
	return rows, nil
}

func (r *dashboardRepository) PaymentExportRows(ctx context.Context, tx *gorm.DB) ([]repositories.PaymentExportRow, error) {
	var rows []repositories.PaymentExportRow
	err := r.getDB(tx).WithContext(ctx).Table("payments p").
		Select(`p.id AS payment_id, u.email AS user_email, c.title AS course_title,
			p.amount, p.currency, p.status, p.created_at, p.paid_at`).
		Joins("JOIN users u ON u.id = p.user_id").
		Joins("JOIN courses c ON c.id = p.course_id").
		Order("p.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to export payments: %w", err)
	}
	return rows, nil
}

func (r *dashboardRepository) QuizResultExportRows(ctx context.Context, tx *gorm.DB) ([]repositories.QuizResultExportRow, error) {
	var rows []repositories.QuizResultExportRow
	err := r.getDB(tx).WithContext(ctx).Table("quiz_attempts a").
		Select(`u.email AS user_email, q.title AS quiz_title, c.title AS course_title,
			a.attempt_number, a.percentage, a.passed, a.submitted_at`).
		Joins("JOIN users u ON u.id = a.user_id").
		Joins("JOIN quizzes q ON q.id = a.quiz_id").
		Joins("JOIN courses c ON c.id = q.course_id").
		Order("a.submitted_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to export quiz results: %w", err)
	}
	return rows, nil
}
