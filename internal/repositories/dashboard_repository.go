package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TimeRange bounds a dashboard query; nil ends are open
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

type DashboardRepository interface {
	CountUsers(ctx context.Context, tx *gorm.DB, r TimeRange) (int64, error)
	CountPublishedCourses(ctx context.Context, tx *gorm.DB) (int64, error)
	CountEnrollments(ctx context.Context, tx *gorm.DB, r TimeRange) (int64, error)
	CountCompletedEnrollments(ctx context.Context, tx *gorm.DB, r TimeRange) (int64, error)
	// NetRevenue is succeeded minus refunded payment amounts
	NetRevenue(ctx context.Context, tx *gorm.DB, r TimeRange) (float64, error)
	AverageQuizPercentage(ctx context.Context, tx *gorm.DB, r TimeRange) (float64, error)

	RevenueTrend(ctx context.Context, tx *gorm.DB, since time.Time, bucket string) ([]RevenuePoint, error)
	TopCourses(ctx context.Context, tx *gorm.DB, limit int) ([]TopCourseData, error)
	RecentEnrollments(ctx context.Context, tx *gorm.DB, limit int) ([]RecentEnrollmentData, error)

	EnrollmentExportRows(ctx context.Context, tx *gorm.DB) ([]EnrollmentExportRow, error)
	PaymentExportRows(ctx context.Context, tx *gorm.DB) ([]PaymentExportRow, error)
	QuizResultExportRows(ctx context.Context, tx *gorm.DB) ([]QuizResultExportRow, error)
}

type RevenuePoint struct {
	Period   time.Time `json:"period"`
	Revenue  float64   `json:"revenue"`
	Payments int64     `json:"payments"`
}

type TopCourseData struct {
	CourseID    string  `json:"course_id"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Enrollments int64   `json:"enrollments"`
	Revenue     float64 `json:"revenue"`
	RatingAvg   float64 `json:"rating_avg"`
}

type RecentEnrollmentData struct {
	EnrollmentID string    `json:"enrollment_id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	UserEmail    string    `json:"user_email"`
	CourseID     string    `json:"course_id"`
	CourseTitle  string    `json:"course_title"`
	Status       string    `json:"status"`
	EnrolledAt   time.Time `json:"enrolled_at"`
}

type EnrollmentExportRow struct {
	UserEmail       string
	UserName        string
	CourseTitle     string
	Status          string
	ProgressPercent float64
	EnrolledAt      time.Time
	CompletedAt     *time.Time
}

type PaymentExportRow struct {
	PaymentID   string
	UserEmail   string
	CourseTitle string
	Amount      float64
	Currency    string
	Status      string
	CreatedAt   time.Time
	PaidAt      *time.Time
}

type QuizResultExportRow struct {
	UserEmail     string
	QuizTitle     string
	CourseTitle   string
	AttemptNumber int
	Percentage    float64
	Passed        bool
	SubmittedAt   time.Time
}
