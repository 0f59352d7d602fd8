package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/models"
)

func TestMaintenanceService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 3, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	svc := NewMaintenanceService(repo, nil, testLogger()).(*maintenanceService)
	svc.now = func() time.Time { return now }

	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)
	require.NoError(t, repo.enrollments.Create(ctx, nil, &models.Enrollment{UserID: "u1", CourseID: "c1", Status: models.EnrollmentActive, ExpiresAt: &yesterday}))
	require.NoError(t, repo.enrollments.Create(ctx, nil, &models.Enrollment{UserID: "u1", CourseID: "c2", Status: models.EnrollmentActive, ExpiresAt: &tomorrow}))
	require.NoError(t, repo.enrollments.Create(ctx, nil, &models.Enrollment{UserID: "u2", CourseID: "c1", Status: models.EnrollmentActive}))

	require.NoError(t, repo.subscriptions.Save(ctx, nil, &models.Subscription{StripeSubscriptionID: "sub_1", Status: models.SubscriptionActive, CurrentPeriodEnd: &yesterday}))
	require.NoError(t, repo.subscriptions.Save(ctx, nil, &models.Subscription{StripeSubscriptionID: "sub_2", Status: models.SubscriptionActive, CurrentPeriodEnd: &tomorrow}))

	require.NoError(t, repo.payments.Create(ctx, nil, &models.Payment{Status: models.PaymentPending, CreatedAt: now.Add(-StalePaymentAge - time.Minute)}))
	require.NoError(t, repo.payments.Create(ctx, nil, &models.Payment{Status: models.PaymentPending, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.payments.Create(ctx, nil, &models.Payment{Status: models.PaymentSucceeded, CreatedAt: now.AddDate(0, -1, 0)}))

	n, err := svc.ExpireEnrollments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	expired, _ := repo.enrollments.Get(ctx, nil, "u1", "c1")
	assert.Equal(t, models.EnrollmentExpired, expired.Status)

	n, err = svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = svc.FailStalePayments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	stale, _ := repo.payments.GetByID(ctx, nil, "pay-1")
	assert.Equal(t, models.PaymentFailed, stale.Status)

	// a second run finds nothing left to do
	n, err = svc.ExpireEnrollments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
