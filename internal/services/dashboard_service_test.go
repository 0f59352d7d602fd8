package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/repositories"
)

// fakeDashboard answers counts from the range start so current and previous periods differ
type fakeDashboard struct {
	repositories.DashboardRepository
	now          time.Time
	revenueError error
	trendSince   time.Time
	trendBucket  string
}

func (d *fakeDashboard) inCurrent(r repositories.TimeRange) bool {
	return r.From != nil && r.From.After(d.now.AddDate(0, 0, -31))
}

func (d *fakeDashboard) CountUsers(ctx context.Context, tx *gorm.DB, r repositories.TimeRange) (int64, error) {
	switch {
	case r.From == nil:
		return 120, nil
	case d.inCurrent(r):
		return 15, nil
	default:
		return 10, nil
	}
}

func (d *fakeDashboard) CountPublishedCourses(ctx context.Context, tx *gorm.DB) (int64, error) {
	return 8, nil
}

func (d *fakeDashboard) CountEnrollments(ctx context.Context, tx *gorm.DB, r repositories.TimeRange) (int64, error) {
	switch {
	case r.From == nil:
		return 300, nil
	case d.inCurrent(r):
		return 40, nil
	default:
		return 0, nil
	}
}

func (d *fakeDashboard) CountCompletedEnrollments(ctx context.Context, tx *gorm.DB, r repositories.TimeRange) (int64, error) {
	return 75, nil
}

func (d *fakeDashboard) NetRevenue(ctx context.Context, tx *gorm.DB, r repositories.TimeRange) (float64, error) {
	if r.From != nil && d.revenueError != nil {
		return 0, d.revenueError
	}
	return 12345.678, nil
}

func (d *fakeDashboard) AverageQuizPercentage(ctx context.Context, tx *gorm.DB, r repositories.TimeRange) (float64, error) {
	return 72.456, nil
}

func (d *fakeDashboard) RevenueTrend(ctx context.Context, tx *gorm.DB, since time.Time, bucket string) ([]repositories.RevenuePoint, error) {
	d.trendSince, d.trendBucket = since, bucket
	return []repositories.RevenuePoint{
		{Period: since, Revenue: 100.25, Payments: 1},
		{Period: since.AddDate(0, 0, 1), Revenue: 49.9, Payments: 1},
	}, nil
}

func (d *fakeDashboard) PaymentExportRows(ctx context.Context, tx *gorm.DB) ([]repositories.PaymentExportRow, error) {
	paid := d.now.Add(-time.Hour)
	return []repositories.PaymentExportRow{
		{PaymentID: "pay-1", UserEmail: "ogrenci@example.com", CourseTitle: "İleri Go", Amount: 499.9, Currency: "TRY", Status: "succeeded", CreatedAt: d.now.Add(-2 * time.Hour), PaidAt: &paid},
		{PaymentID: "pay-2", UserEmail: "diger@example.com", CourseTitle: "İleri Go", Amount: 499.9, Currency: "TRY", Status: "pending", CreatedAt: d.now},
	}, nil
}

func (d *fakeDashboard) QuizResultExportRows(ctx context.Context, tx *gorm.DB) ([]repositories.QuizResultExportRow, error) {
	return nil, errors.New("connection reset")
}

func newDashboardFixture() (*fakeDashboard, *dashboardService) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	dash := &fakeDashboard{now: now}
	repo := newMockRepository()
	repo.dashboard = dash
	svc := NewDashboardService(repo, nil, testLogger()).(*dashboardService)
	svc.now = func() time.Time { return now }
	return dash, svc
}

func TestDashboardService_Stats(t *testing.T) {
	_, svc := newDashboardFixture()

	stats, err := svc.Stats(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 30, stats.PeriodDays)
	assert.EqualValues(t, 120, stats.TotalUsers)
	assert.EqualValues(t, 15, stats.NewUsers)
	assert.EqualValues(t, 8, stats.PublishedCourses)
	assert.Equal(t, 12345.68, stats.Revenue)
	assert.Equal(t, 72.5, stats.AverageQuizScore)
	assert.Equal(t, 25.0, stats.CompletionRate)
	assert.Equal(t, 50.0, stats.UsersTrend)
	assert.Equal(t, 100.0, stats.EnrollmentsTrend)
	assert.Equal(t, 0.0, stats.RevenueTrend)
}

func TestDashboardService_StatsSurviveTrendFailure(t *testing.T) {
	dash, svc := newDashboardFixture()
	dash.revenueError = errors.New("timeout")

	stats, err := svc.Stats(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 12345.68, stats.Revenue)
	assert.Zero(t, stats.RevenueTrend)
}

func TestDashboardService_RevenueTrend(t *testing.T) {
	dash, svc := newDashboardFixture()

	trend, err := svc.RevenueTrend(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "month", trend.Period)
	assert.Equal(t, "week", dash.trendBucket)
	assert.Equal(t, dash.now.AddDate(0, 0, -30), dash.trendSince)
	assert.Len(t, trend.Points, 2)
	assert.Equal(t, 150.15, trend.Total)

	_, err = svc.RevenueTrend(context.Background(), "quarter")
	assert.True(t, IsValidationError(err))
}

func TestDashboardService_ExportPayments(t *testing.T) {
	_, svc := newDashboardFixture()

	file, err := svc.Export(context.Background(), ExportPayments)
	require.NoError(t, err)
	assert.Equal(t, "payments-20260615.xlsx", file.Filename)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Ödemeler")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ödeme ID", rows[0][0])
	assert.Equal(t, "pay-1", rows[1][0])
	assert.Equal(t, "2026-06-15 11:00", rows[1][7])
	assert.Equal(t, "pending", rows[2][5])
}

func TestDashboardService_ExportErrors(t *testing.T) {
	_, svc := newDashboardFixture()

	_, err := svc.Export(context.Background(), "users")
	assert.True(t, IsValidationError(err))

	_, err = svc.Export(context.Background(), ExportQuizResults)
	assert.ErrorContains(t, err, "connection reset")
}
