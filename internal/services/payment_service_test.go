package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/payments"
)

// fakeGateway answers like the provider and returns webhook events registered by payload
type fakeGateway struct {
	customers int
	sessions  []payments.CheckoutParams
	refunds   []string
	webhooks  map[string]*payments.WebhookEvent
	failNext  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{webhooks: map[string]*payments.WebhookEvent{}}
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, params payments.CustomerParams) (string, error) {
	g.customers++
	return fmt.Sprintf("cus_%d", g.customers), nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error) {
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return nil, err
	}
	g.sessions = append(g.sessions, params)
	id := fmt.Sprintf("cs_%d", len(g.sessions))
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, params payments.IntentParams) (*payments.PaymentIntent, error) {
	return &payments.PaymentIntent{ID: "pi_" + params.PaymentID, ClientSecret: "secret_" + params.PaymentID}, nil
}

func (g *fakeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.example/" + customerID, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentIntentID, reason, idempotencyKey string) (string, error) {
	g.refunds = append(g.refunds, idempotencyKey)
	return "re_" + paymentIntentID, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	if signature != "valid" {
		return nil, payments.ErrInvalidSignature
	}
	event, ok := g.webhooks[string(payload)]
	if !ok {
		return &payments.WebhookEvent{ID: "evt_unknown", Type: "invoice.created"}, nil
	}
	return event, nil
}

type paymentFixture struct {
	repo      *MockRepository
	gateway   *fakeGateway
	publisher *events.MockEventPublisher
	svc       PaymentService
}

func newPaymentFixture(enabled bool) *paymentFixture {
	repo := newMockRepository()
	repo.users.add(&models.User{ID: "s1", Email: "ogrenci@example.com", FullName: "Can Demir", Role: models.RoleStudent})
	repo.users.add(&models.User{ID: "a1", Email: "admin@example.com", Role: models.RoleAdmin})
	repo.courses.add(&models.Course{ID: "paid", Title: "İleri Go", Slug: "ileri-go", Status: models.CoursePublished, Price: 499.90})
	repo.courses.add(&models.Course{ID: "free", Title: "Go Temelleri", Status: models.CoursePublished})

	publisher := events.NewMockEventPublisher(testLogger())
	gateway := newFakeGateway()
	enrollments := NewEnrollmentService(repo, nil, testLogger(), nil, publisher, 0)
	svc := NewPaymentService(repo, nil, testLogger(), nil, gateway, enrollments, publisher, config.StripeConfig{
		Enabled:    enabled,
		SuccessURL: "https://7p.example/payment/success",
		CancelURL:  "https://7p.example/payment/cancel",
	})
	return &paymentFixture{repo: repo, gateway: gateway, publisher: publisher, svc: svc}
}

func (f *paymentFixture) webhook(payload string, event *payments.WebhookEvent) error {
	f.gateway.webhooks[payload] = event
	return f.svc.HandleWebhook(context.Background(), []byte(payload), "valid")
}

func TestPaymentService_Disabled(t *testing.T) {
	f := newPaymentFixture(false)
	ctx := context.Background()

	assert.False(t, f.svc.Enabled())
	_, err := f.svc.CreateCheckoutSession(ctx, "s1", "paid")
	assert.ErrorIs(t, err, ErrPaymentsDisabled)
	assert.ErrorIs(t, f.svc.HandleWebhook(ctx, []byte("{}"), "valid"), ErrPaymentsDisabled)
	_, err = f.svc.ListMine(ctx, "s1")
	assert.ErrorIs(t, err, ErrPaymentsDisabled)
}

func TestPaymentService_CheckoutRules(t *testing.T) {
	f := newPaymentFixture(true)
	ctx := context.Background()

	_, err := f.svc.CreateCheckoutSession(ctx, "s1", "free")
	var rule *BusinessRuleError
	require.True(t, errors.As(err, &rule))
	assert.Equal(t, "free_course", rule.Rule)

	_, err = f.svc.CreateCheckoutSession(ctx, "s1", "missing")
	assert.ErrorIs(t, err, ErrCourseNotFound)

	f.gateway.failNext = errors.New("card network unavailable")
	_, err = f.svc.CreateCheckoutSession(ctx, "s1", "paid")
	require.Error(t, err)
	failed, err := f.repo.payments.GetByID(ctx, nil, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.Status)
}

func TestPaymentService_CheckoutToEnrollment(t *testing.T) {
	f := newPaymentFixture(true)
	ctx := context.Background()

	checkout, err := f.svc.CreateCheckoutSession(ctx, "s1", "paid")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", checkout.SessionID)
	assert.Contains(t, checkout.URL, "cs_1")

	require.Len(t, f.gateway.sessions, 1)
	params := f.gateway.sessions[0]
	assert.EqualValues(t, 49990, params.AmountMinor)
	assert.Equal(t, "TRY", params.Currency)
	assert.Equal(t, "cus_1", params.CustomerID)
	assert.NotEmpty(t, params.IdempotencyKey)

	user, _ := f.repo.users.GetByID(ctx, nil, "s1")
	require.NotNil(t, user.StripeCustomerID)

	completed := &payments.WebhookEvent{ID: "evt_1", Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutCompleted{
		SessionID: "cs_1", PaymentIntentID: "pi_1", PaymentID: checkout.PaymentID, Paid: true,
	}}
	require.NoError(t, f.webhook("checkout-1", completed))
	// providers deliver at least once
	require.NoError(t, f.webhook("checkout-1", completed))

	payment, err := f.repo.payments.GetByID(ctx, nil, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.NotNil(t, payment.PaidAt)
	assert.Equal(t, "pi_1", *payment.StripePaymentIntentID)

	enrollment, err := f.repo.enrollments.Get(ctx, nil, "s1", "paid")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	assert.Equal(t, checkout.PaymentID, *enrollment.PaymentID)
	assert.Equal(t, 1, f.repo.courses.counts["paid"])

	succeeded := f.publisher.EventsOfType(events.EventPaymentSucceeded)
	require.Len(t, succeeded, 1)
	var data events.PaymentSucceededData
	require.NoError(t, succeeded[0].Decode(&data))
	assert.Equal(t, "İleri Go", data.CourseTitle)
	assert.Len(t, f.publisher.EventsOfType(events.EventEnrollmentCreated), 1)

	_, err = f.svc.CreateCheckoutSession(ctx, "s1", "paid")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestPaymentService_IntentFailureAndUnknownPayments(t *testing.T) {
	f := newPaymentFixture(true)
	ctx := context.Background()

	intent, err := f.svc.CreatePaymentIntent(ctx, "s1", "paid")
	require.NoError(t, err)
	assert.Equal(t, "secret_"+intent.PaymentID, intent.ClientSecret)

	require.NoError(t, f.webhook("failed", &payments.WebhookEvent{Type: payments.EventIntentFailed, Intent: &payments.IntentUpdate{
		IntentID: "pi_" + intent.PaymentID, FailureReason: "card_declined",
	}}))
	payment, _ := f.repo.payments.GetByID(ctx, nil, intent.PaymentID)
	assert.Equal(t, models.PaymentFailed, payment.Status)
	assert.Equal(t, "card_declined", *payment.FailureReason)

	assert.NoError(t, f.webhook("unknown", &payments.WebhookEvent{Type: payments.EventIntentSucceeded, Intent: &payments.IntentUpdate{IntentID: "pi_other"}}))
	assert.NoError(t, f.webhook("ignored", &payments.WebhookEvent{Type: "invoice.created"}))

	err = f.svc.HandleWebhook(ctx, []byte("anything"), "forged")
	assert.True(t, IsValidationError(err))
}

func TestPaymentService_Refund(t *testing.T) {
	f := newPaymentFixture(true)
	ctx := context.Background()

	intent, err := f.svc.CreatePaymentIntent(ctx, "s1", "paid")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, "a1", intent.PaymentID, "duplicate purchase")
	var rule *BusinessRuleError
	require.True(t, errors.As(err, &rule))
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, f.webhook("paid", &payments.WebhookEvent{Type: payments.EventIntentSucceeded, Intent: &payments.IntentUpdate{
		IntentID: "pi_" + intent.PaymentID, PaymentID: intent.PaymentID,
	}}))
	assert.Equal(t, 1, f.repo.courses.counts["paid"])

	_, err = f.svc.Refund(ctx, "s1", intent.PaymentID, "changed my mind")
	assert.True(t, IsPermissionError(err))

	refunded, err := f.svc.Refund(ctx, "a1", intent.PaymentID, "duplicate purchase")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)
	assert.Equal(t, []string{"refund-" + intent.PaymentID}, f.gateway.refunds)

	enrollment, _ := f.repo.enrollments.Get(ctx, nil, "s1", "paid")
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)
	assert.Equal(t, 0, f.repo.courses.counts["paid"])

	// the provider echoes the refund back
	require.NoError(t, f.webhook("refund", &payments.WebhookEvent{Type: payments.EventChargeRefunded, Refund: &payments.ChargeRefund{
		PaymentIntentID: "pi_" + intent.PaymentID,
	}}))
	assert.Len(t, f.publisher.EventsOfType(events.EventPaymentRefunded), 1)
	assert.Equal(t, 0, f.repo.courses.counts["paid"])
}

func TestPaymentService_SuccessAfterRefundIsIgnored(t *testing.T) {
	f := newPaymentFixture(true)
	ctx := context.Background()

	intent, err := f.svc.CreatePaymentIntent(ctx, "s1", "paid")
	require.NoError(t, err)
	succeeded := &payments.WebhookEvent{Type: payments.EventIntentSucceeded, Intent: &payments.IntentUpdate{
		IntentID: "pi_" + intent.PaymentID, PaymentID: intent.PaymentID,
	}}
	require.NoError(t, f.webhook("paid", succeeded))

	_, err = f.svc.Refund(ctx, "a1", intent.PaymentID, "duplicate purchase")
	require.NoError(t, err)

	// redelivered or reordered success events arrive after the refund
	require.NoError(t, f.webhook("paid", succeeded))
	require.NoError(t, f.webhook("checkout", &payments.WebhookEvent{Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutCompleted{
		PaymentID: intent.PaymentID, PaymentIntentID: "pi_" + intent.PaymentID, Paid: true,
	}}))

	payment, err := f.repo.payments.GetByID(ctx, nil, intent.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, payment.Status)

	enrollment, err := f.repo.enrollments.Get(ctx, nil, "s1", "paid")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)
	assert.Equal(t, 0, f.repo.courses.counts["paid"])
	assert.Len(t, f.publisher.EventsOfType(events.EventPaymentSucceeded), 1)
}

func TestPaymentService_SubscriptionWebhook(t *testing.T) {
	f := newPaymentFixture(true)
	ctx := context.Background()

	update := &payments.SubscriptionUpdate{SubscriptionID: "sub_1", UserID: "s1", Plan: "pro", Status: "trialing"}
	require.NoError(t, f.webhook("sub-updated", &payments.WebhookEvent{Type: payments.EventSubscriptionUpdated, Subscription: update}))

	sub, err := f.repo.subscriptions.GetByStripeID(ctx, nil, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, "pro", sub.Plan)

	require.NoError(t, f.webhook("sub-deleted", &payments.WebhookEvent{Type: payments.EventSubscriptionDeleted, Subscription: update}))
	sub, _ = f.repo.subscriptions.GetByStripeID(ctx, nil, "sub_1")
	assert.Equal(t, models.SubscriptionCancelled, sub.Status)

	assert.Equal(t, models.SubscriptionPastDue, subscriptionStatus("unpaid"))
	assert.Equal(t, models.SubscriptionExpired, subscriptionStatus("incomplete_expired"))
}
