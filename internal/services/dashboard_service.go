package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/export"
	"github.com/7p-education/platform/internal/repositories"
)

const (
	ExportEnrollments = "enrollments"
	ExportPayments    = "payments"
	ExportQuizResults = "quiz_results"
)

type dashboardService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewDashboardService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) DashboardService {
	return &dashboardService{
		repo:   repo,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (s *dashboardService) Stats(ctx context.Context, periodDays int) (*DashboardStats, error) {
	s.logger.Info("Getting dashboard stats", "period", periodDays)

	if periodDays <= 0 || periodDays > 365 {
		periodDays = 30
	}
	now := s.now()
	periodStart := now.AddDate(0, 0, -periodDays)
	previousStart := periodStart.AddDate(0, 0, -periodDays)
	all := repositories.TimeRange{}
	current := repositories.TimeRange{From: &periodStart, To: &now}
	previous := repositories.TimeRange{From: &previousStart, To: &periodStart}

	dash := s.repo.Dashboard()
	stats := &DashboardStats{PeriodDays: periodDays}
	var err error

	if stats.TotalUsers, err = dash.CountUsers(ctx, s.db, all); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if stats.NewUsers, err = dash.CountUsers(ctx, s.db, current); err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}
	if stats.PublishedCourses, err = dash.CountPublishedCourses(ctx, s.db); err != nil {
		return nil, fmt.Errorf("failed to count courses: %w", err)
	}
	if stats.TotalEnrollments, err = dash.CountEnrollments(ctx, s.db, all); err != nil {
		return nil, fmt.Errorf("failed to count enrollments: %w", err)
	}
	if stats.CompletedEnrollments, err = dash.CountCompletedEnrollments(ctx, s.db, all); err != nil {
		return nil, fmt.Errorf("failed to count completed enrollments: %w", err)
	}
	revenue, err := dash.NetRevenue(ctx, s.db, all)
	if err != nil {
		return nil, fmt.Errorf("failed to get revenue: %w", err)
	}
	stats.Revenue = roundFloat(revenue, 2)

	avgScore, err := dash.AverageQuizPercentage(ctx, s.db, all)
	if err != nil {
		return nil, fmt.Errorf("failed to get average quiz score: %w", err)
	}
	stats.AverageQuizScore = roundFloat(avgScore, 1)
	stats.CompletionRate = roundFloat(percentage(stats.CompletedEnrollments, stats.TotalEnrollments), 1)

	// Trends are best effort; a failing comparison leaves the trend at zero
	if prevUsers, err := dash.CountUsers(ctx, s.db, previous); err == nil {
		stats.UsersTrend = percentChange(float64(stats.NewUsers), float64(prevUsers))
	} else {
		s.logger.Warn("Failed to get users trend", "error", err)
	}

	curEnrollments, err1 := dash.CountEnrollments(ctx, s.db, current)
	prevEnrollments, err2 := dash.CountEnrollments(ctx, s.db, previous)
	if err1 == nil && err2 == nil {
		stats.EnrollmentsTrend = percentChange(float64(curEnrollments), float64(prevEnrollments))
	} else {
		s.logger.Warn("Failed to get enrollments trend", "error", firstError(err1, err2))
	}

	curRevenue, err1 := dash.NetRevenue(ctx, s.db, current)
	prevRevenue, err2 := dash.NetRevenue(ctx, s.db, previous)
	if err1 == nil && err2 == nil {
		stats.RevenueTrend = percentChange(curRevenue, prevRevenue)
	} else {
		s.logger.Warn("Failed to get revenue trend", "error", firstError(err1, err2))
	}

	return stats, nil
}

func (s *dashboardService) RevenueTrend(ctx context.Context, period string) (*RevenueTrendResponse, error) {
	s.logger.Info("Getting revenue trend", "period", period)

	if period == "" {
		period = "month"
	}
	bucket, since, err := trendWindow(period, s.now())
	if err != nil {
		return nil, err
	}

	points, err := s.repo.Dashboard().RevenueTrend(ctx, s.db, since, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get revenue trend: %w", err)
	}

	resp := &RevenueTrendResponse{Period: period, Bucket: bucket, Points: points}
	for i := range points {
		points[i].Revenue = roundFloat(points[i].Revenue, 2)
		resp.Total += points[i].Revenue
	}
	resp.Total = roundFloat(resp.Total, 2)
	if resp.Points == nil {
		resp.Points = []repositories.RevenuePoint{}
	}
	return resp, nil
}

// trendWindow maps a trend period to its bucket size and start
func trendWindow(period string, now time.Time) (string, time.Time, error) {
	switch period {
	case "week":
		return "day", now.AddDate(0, 0, -7), nil
	case "month":
		return "week", now.AddDate(0, 0, -30), nil
	case "year":
		return "month", now.AddDate(0, 0, -365), nil
	default:
		return "", time.Time{}, NewValidationError("period", "must be 'week', 'month', or 'year'", period)
	}
}

func (s *dashboardService) TopCourses(ctx context.Context, limit int) ([]repositories.TopCourseData, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	courses, err := s.repo.Dashboard().TopCourses(ctx, s.db, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top courses: %w", err)
	}
	for i := range courses {
		courses[i].Revenue = roundFloat(courses[i].Revenue, 2)
	}
	return courses, nil
}

func (s *dashboardService) RecentEnrollments(ctx context.Context, limit int) ([]RecentEnrollmentItem, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := s.repo.Dashboard().RecentEnrollments(ctx, s.db, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent enrollments: %w", err)
	}

	items := make([]RecentEnrollmentItem, len(rows))
	for i, row := range rows {
		items[i] = RecentEnrollmentItem{RecentEnrollmentData: row, TimeAgo: formatTimeAgo(row.EnrolledAt)}
	}
	return items, nil
}

// ===== EXPORTS =====

func (s *dashboardService) Export(ctx context.Context, kind string) (*ExportFile, error) {
	s.logger.Info("Exporting report", "kind", kind)

	var (
		sheet export.Sheet
		err   error
	)
	switch kind {
	case ExportEnrollments:
		sheet, err = s.enrollmentSheet(ctx)
	case ExportPayments:
		sheet, err = s.paymentSheet(ctx)
	case ExportQuizResults:
		sheet, err = s.quizResultSheet(ctx)
	default:
		return nil, NewValidationError("kind", "must be 'enrollments', 'payments', or 'quiz_results'", kind)
	}
	if err != nil {
		return nil, err
	}

	data, err := export.BuildXLSX(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to build export: %w", err)
	}

	s.logger.Info("Report exported successfully", "kind", kind, "rows", len(sheet.Rows))
	return &ExportFile{
		Filename:    fmt.Sprintf("%s-%s.xlsx", kind, s.now().Format("20060102")),
		ContentType: export.ContentTypeXLSX,
		Data:        data,
	}, nil
}

func (s *dashboardService) enrollmentSheet(ctx context.Context) (export.Sheet, error) {
	rows, err := s.repo.Dashboard().EnrollmentExportRows(ctx, s.db)
	if err != nil {
		return export.Sheet{}, fmt.Errorf("failed to load enrollments: %w", err)
	}
	sheet := export.Sheet{
		Name:    "Kayıtlar",
		Headers: []string{"E-posta", "Ad Soyad", "Kurs", "Durum", "İlerleme (%)", "Kayıt Tarihi", "Tamamlanma Tarihi"},
		Rows:    make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		sheet.Rows = append(sheet.Rows, []interface{}{
			r.UserEmail, r.UserName, r.CourseTitle, r.Status,
			roundFloat(r.ProgressPercent, 1), formatExportTime(&r.EnrolledAt), formatExportTime(r.CompletedAt),
		})
	}
	return sheet, nil
}

func (s *dashboardService) paymentSheet(ctx context.Context) (export.Sheet, error) {
	rows, err := s.repo.Dashboard().PaymentExportRows(ctx, s.db)
	if err != nil {
		return export.Sheet{}, fmt.Errorf("failed to load payments: %w", err)
	}
	sheet := export.Sheet{
		Name:    "Ödemeler",
		Headers: []string{"Ödeme ID", "E-posta", "Kurs", "Tutar", "Para Birimi", "Durum", "Oluşturulma", "Ödeme Tarihi"},
		Rows:    make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		sheet.Rows = append(sheet.Rows, []interface{}{
			r.PaymentID, r.UserEmail, r.CourseTitle, roundFloat(r.Amount, 2), r.Currency, r.Status,
			formatExportTime(&r.CreatedAt), formatExportTime(r.PaidAt),
		})
	}
	return sheet, nil
}

func (s *dashboardService) quizResultSheet(ctx context.Context) (export.Sheet, error) {
	rows, err := s.repo.Dashboard().QuizResultExportRows(ctx, s.db)
	if err != nil {
		return export.Sheet{}, fmt.Errorf("failed to load quiz results: %w", err)
	}
	sheet := export.Sheet{
		Name:    "Sınav Sonuçları",
		Headers: []string{"E-posta", "Sınav", "Kurs", "Deneme", "Başarı (%)", "Geçti", "Gönderim Tarihi"},
		Rows:    make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		passed := "Hayır"
		if r.Passed {
			passed = "Evet"
		}
		sheet.Rows = append(sheet.Rows, []interface{}{
			r.UserEmail, r.QuizTitle, r.CourseTitle, r.AttemptNumber,
			roundFloat(r.Percentage, 1), passed, formatExportTime(&r.SubmittedAt),
		})
	}
	return sheet, nil
}

// ===== HELPER FUNCTIONS =====

// percentChange is the relative change from previous to current in percent
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return roundFloat((current-previous)/previous*100, 1)
}

func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
