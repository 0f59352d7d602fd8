package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/validator"
)

func setupReviewTest(t *testing.T) (*MockRepository, *reviewService) {
	t.Helper()
	ctx := context.Background()
	repo := newMockRepository()
	repo.users.add(&models.User{ID: "s1", Email: "ogrenci@example.com", Role: models.RoleStudent})
	repo.users.add(&models.User{ID: "s2", Email: "misafir@example.com", Role: models.RoleStudent})
	repo.users.add(&models.User{ID: "s3", Email: "diger@example.com", Role: models.RoleStudent})
	repo.users.add(&models.User{ID: "a1", Email: "yonetici@example.com", Role: models.RoleAdmin})
	repo.courses.add(&models.Course{ID: "c1", Title: "Go Temelleri", Slug: "go-temelleri", Status: models.CoursePublished})

	for _, id := range []string{"s1", "s3"} {
		require.NoError(t, repo.enrollments.Create(ctx, nil, &models.Enrollment{UserID: id, CourseID: "c1", Status: models.EnrollmentActive}))
	}
	return repo, NewReviewService(repo, nil, testLogger(), validator.New()).(*reviewService)
}

func TestReviewService_RequiresEnrollment(t *testing.T) {
	repo, svc := setupReviewTest(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, "s2", "c1", &models.ReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, ErrNotEnrolled)

	require.NoError(t, repo.enrollments.Create(ctx, nil, &models.Enrollment{UserID: "s2", CourseID: "c1", Status: models.EnrollmentCancelled}))
	_, err = svc.Upsert(ctx, "s2", "c1", &models.ReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = svc.Upsert(ctx, "s1", "yok", &models.ReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, ErrCourseNotFound)

	_, err = svc.Upsert(ctx, "s1", "c1", &models.ReviewRequest{Rating: 6})
	requireRule(t, err, "rating")

	assert.Empty(t, repo.reviews.items)
	assert.Zero(t, repo.courses.items["c1"].RatingCount)
}

func TestReviewService_UpsertRecomputesRating(t *testing.T) {
	repo, svc := setupReviewTest(t)
	ctx := context.Background()
	course := repo.courses.items["c1"]

	first, err := svc.Upsert(ctx, "s1", "c1", &models.ReviewRequest{Rating: 5, Comment: "  Çok faydalı  "})
	require.NoError(t, err)
	assert.Equal(t, "Çok faydalı", first.Comment)
	assert.Equal(t, 5.0, course.RatingAvg)
	assert.Equal(t, 1, course.RatingCount)

	_, err = svc.Upsert(ctx, "s3", "c1", &models.ReviewRequest{Rating: 2})
	require.NoError(t, err)
	assert.Equal(t, 3.5, course.RatingAvg)
	assert.Equal(t, 2, course.RatingCount)

	// a second review from the same learner replaces the first
	updated, err := svc.Upsert(ctx, "s1", "c1", &models.ReviewRequest{Rating: 3})
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, 2.5, course.RatingAvg)
	assert.Equal(t, 2, course.RatingCount)

	// the cached course is dropped only after the rating is stored
	assert.Equal(t, []string{
		"rating:c1", "invalidate:c1",
		"rating:c1", "invalidate:c1",
		"rating:c1", "invalidate:c1",
	}, repo.courses.calls)
}

func TestReviewService_DeleteByOwnerOrAdmin(t *testing.T) {
	repo, svc := setupReviewTest(t)
	ctx := context.Background()
	course := repo.courses.items["c1"]

	_, err := svc.Upsert(ctx, "s1", "c1", &models.ReviewRequest{Rating: 4})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, "s3", "c1", &models.ReviewRequest{Rating: 1})
	require.NoError(t, err)

	err = svc.Delete(ctx, "s3", "c1", "s1")
	assert.True(t, IsPermissionError(err))
	assert.Equal(t, 2, course.RatingCount)

	require.NoError(t, svc.Delete(ctx, "a1", "c1", "s1"))
	assert.Equal(t, 1.0, course.RatingAvg)
	assert.Equal(t, 1, course.RatingCount)

	require.NoError(t, svc.Delete(ctx, "s3", "c1", ""))
	assert.Zero(t, course.RatingAvg)
	assert.Zero(t, course.RatingCount)

	assert.ErrorIs(t, svc.Delete(ctx, "s3", "c1", ""), ErrReviewNotFound)
}
