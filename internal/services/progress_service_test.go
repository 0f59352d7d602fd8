package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/validator"
)

type progressFixture struct {
	repo      *MockRepository
	publisher *events.MockEventPublisher
	svc       *progressService
	clock     time.Time
}

func setupProgressTest(t *testing.T) *progressFixture {
	t.Helper()
	ctx := context.Background()
	repo := newMockRepository()
	repo.users.add(&models.User{ID: "s1", Email: "ogrenci@example.com", Role: models.RoleStudent})
	repo.users.add(&models.User{ID: "s2", Email: "misafir@example.com", Role: models.RoleStudent})
	repo.courses.add(&models.Course{ID: "c1", Title: "Go Temelleri", Slug: "go-temelleri", Status: models.CoursePublished, InstructorID: "i1"})

	require.NoError(t, repo.modules.Create(ctx, nil, &models.CourseModule{ID: "m1", CourseID: "c1", Title: "Giriş"}))
	for i, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, repo.lessons.Create(ctx, nil, &models.CourseLesson{ID: id, ModuleID: "m1", CourseID: "c1", Title: id, OrderIndex: i}))
	}
	require.NoError(t, repo.enrollments.Create(ctx, nil, &models.Enrollment{UserID: "s1", CourseID: "c1", Status: models.EnrollmentActive}))

	publisher := events.NewMockEventPublisher(testLogger())
	f := &progressFixture{repo: repo, publisher: publisher, clock: time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)}
	svc := NewProgressService(repo, nil, testLogger(), validator.New(), publisher).(*progressService)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func TestProgressService_CompleteLessonIsIdempotent(t *testing.T) {
	f := setupProgressTest(t)
	ctx := context.Background()

	first, err := f.svc.CompleteLesson(ctx, "s1", "l1")
	require.NoError(t, err)
	assert.True(t, first.Progress.Completed)
	assert.Equal(t, 33.33, first.ProgressPercent)
	assert.False(t, first.CourseCompleted)
	assert.Nil(t, first.Certificate)
	completedAt := *first.Progress.CompletedAt

	f.clock = f.clock.Add(time.Hour)
	again, err := f.svc.CompleteLesson(ctx, "s1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 33.33, again.ProgressPercent)
	assert.Equal(t, completedAt, *again.Progress.CompletedAt)
	assert.Equal(t, 1, f.repo.progress.saves)

	enrollment, _ := f.repo.enrollments.Get(ctx, nil, "s1", "c1")
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	assert.Equal(t, 33.33, enrollment.ProgressPercent)
	assert.Equal(t, f.clock, *enrollment.LastAccessedAt)
}

func TestProgressService_CompletingLastLessonIssuesCertificate(t *testing.T) {
	f := setupProgressTest(t)
	ctx := context.Background()

	for _, id := range []string{"l1", "l2"} {
		_, err := f.svc.CompleteLesson(ctx, "s1", id)
		require.NoError(t, err)
	}
	assert.Empty(t, f.publisher.EventsOfType(events.EventCourseCompleted))

	result, err := f.svc.CompleteLesson(ctx, "s1", "l3")
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.ProgressPercent)
	assert.True(t, result.CourseCompleted)
	require.NotNil(t, result.Certificate)
	assert.Regexp(t, `^7P-2026-[0-9A-F]{8}$`, result.Certificate.CertificateNumber)
	assert.Equal(t, f.clock, result.Certificate.IssuedAt)

	enrollment, _ := f.repo.enrollments.Get(ctx, nil, "s1", "c1")
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	require.NotNil(t, enrollment.CompletedAt)

	completed := f.publisher.EventsOfType(events.EventCourseCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "s1", completed[0].UserID)
	var data events.CourseCompletedData
	require.NoError(t, completed[0].Decode(&data))
	assert.Equal(t, "c1", data.CourseID)
	assert.Equal(t, "Go Temelleri", data.CourseTitle)
	assert.Equal(t, result.Certificate.CertificateNumber, data.CertificateNumber)

	// revisiting a finished course keeps the certificate and stays quiet
	f.clock = f.clock.AddDate(0, 0, 1)
	again, err := f.svc.CompleteLesson(ctx, "s1", "l2")
	require.NoError(t, err)
	assert.True(t, again.CourseCompleted)
	assert.Equal(t, result.Certificate.CertificateNumber, again.Certificate.CertificateNumber)
	assert.Len(t, f.publisher.EventsOfType(events.EventCourseCompleted), 1)
	assert.Len(t, f.repo.certificates.items, 1)

	certs, err := f.svc.Certificates(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, certs, 1)
}

func TestProgressService_CompleteLessonRequiresEnrollment(t *testing.T) {
	f := setupProgressTest(t)
	ctx := context.Background()

	_, err := f.svc.CompleteLesson(ctx, "s2", "l1")
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = f.svc.CompleteLesson(ctx, "s1", "l9")
	assert.ErrorIs(t, err, ErrLessonNotFound)

	require.NoError(t, f.repo.enrollments.Update(ctx, nil, &models.Enrollment{UserID: "s2", CourseID: "c1", Status: models.EnrollmentCancelled}))
	_, err = f.svc.CompleteLesson(ctx, "s2", "l1")
	assert.ErrorIs(t, err, ErrNotEnrolled)
	assert.Zero(t, f.repo.progress.saves)
}

func TestProgressService_CourseProgress(t *testing.T) {
	f := setupProgressTest(t)
	ctx := context.Background()

	_, err := f.svc.CompleteLesson(ctx, "s1", "l1")
	require.NoError(t, err)
	_, err = f.svc.UpdatePosition(ctx, "s1", "l2", &models.UpdatePositionRequest{PositionSeconds: 95, WatchedSeconds: 90})
	require.NoError(t, err)

	resp, err := f.svc.CourseProgress(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.TotalLessons)
	assert.EqualValues(t, 1, resp.CompletedLessons)
	require.NotNil(t, resp.NextLessonID)
	assert.Equal(t, "l2", *resp.NextLessonID)
	assert.Equal(t, 95, resp.Lessons[1].LastPositionSeconds)

	_, err = f.svc.CourseProgress(ctx, "s2", "c1")
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)
}
