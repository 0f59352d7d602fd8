package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	ID                      string         `json:"id" gorm:"primaryKey;size:36"`
	UserID                  string         `json:"user_id" gorm:"size:36;not null;index"`
	CourseID                string         `json:"course_id" gorm:"size:36;not null;index"`
	Amount                  float64        `json:"amount" gorm:"type:numeric(10,2);not null;check:amount >= 0"`
	Currency                string         `json:"currency" gorm:"size:3;not null;default:TRY"`
	Status                  PaymentStatus  `json:"status" gorm:"size:20;not null;default:pending;index"`
	StripePaymentIntentID   *string        `json:"stripe_payment_intent_id,omitempty" gorm:"size:255;index"`
	StripeCheckoutSessionID *string        `json:"stripe_checkout_session_id,omitempty" gorm:"size:255;index"`
	StripeRefundID          *string        `json:"stripe_refund_id,omitempty" gorm:"size:255"`
	IdempotencyKey          string         `json:"-" gorm:"size:64;uniqueIndex"`
	FailureReason           *string        `json:"failure_reason,omitempty" gorm:"type:text"`
	Metadata                datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	PaidAt                  *time.Time     `json:"paid_at"`
	RefundedAt              *time.Time     `json:"refunded_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Course *Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	User   *User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	p.ID = ensureID(p.ID)
	return nil
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

type Subscription struct {
	ID                   string             `json:"id" gorm:"primaryKey;size:36"`
	UserID               string             `json:"user_id" gorm:"size:36;not null;index"`
	Plan                 string             `json:"plan" gorm:"size:50;not null"`
	Status               SubscriptionStatus `json:"status" gorm:"size:20;not null;index"`
	StripeSubscriptionID string             `json:"-" gorm:"size:255;uniqueIndex"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end" gorm:"index"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	s.ID = ensureID(s.ID)
	return nil
}
