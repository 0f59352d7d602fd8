package payments

import (
	"context"
	"errors"
	"math"
	"time"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Webhook event types the platform acts on
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventIntentSucceeded     = "payment_intent.succeeded"
	EventIntentFailed        = "payment_intent.payment_failed"
	EventChargeRefunded      = "charge.refunded"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

const (
	MetadataPaymentID = "payment_id"
	MetadataUserID    = "user_id"
	MetadataCourseID  = "course_id"
)

type CheckoutParams struct {
	PaymentID      string
	UserID         string
	CourseID       string
	CourseTitle    string
	CustomerID     string
	CustomerEmail  string
	AmountMinor    int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

type IntentParams struct {
	PaymentID      string
	UserID         string
	CourseID       string
	CustomerID     string
	ReceiptEmail   string
	AmountMinor    int64
	Currency       string
	Description    string
	IdempotencyKey string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type CustomerParams struct {
	UserID string
	Email  string
	Name   string
}

// WebhookEvent is a verified provider event reduced to what the platform needs.
// Exactly one of the typed payloads is set for handled types.
type WebhookEvent struct {
	ID           string
	Type         string
	Checkout     *CheckoutCompleted
	Intent       *IntentUpdate
	Refund       *ChargeRefund
	Subscription *SubscriptionUpdate
}

type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	CustomerID      string
	PaymentID       string
	Paid            bool
}

type IntentUpdate struct {
	IntentID      string
	PaymentID     string
	FailureReason string
}

type ChargeRefund struct {
	PaymentIntentID string
	RefundID        string
}

type SubscriptionUpdate struct {
	SubscriptionID    string
	CustomerID        string
	UserID            string
	Plan              string
	Status            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// Gateway is the payment provider surface the payment service depends on
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*PaymentIntent, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	Refund(ctx context.Context, paymentIntentID, reason, idempotencyKey string) (string, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// MinorUnits converts an amount to the currency's smallest unit (kuruş for TRY)
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
