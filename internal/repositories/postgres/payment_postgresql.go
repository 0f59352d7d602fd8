package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

type PaymentPostgreSQL struct {
	baseRepository
}

func NewPaymentPostgreSQL(db *gorm.DB) repositories.PaymentRepository {
	return &PaymentPostgreSQL{baseRepository{db: db}}
}

func (p *PaymentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return wrapErr("create payment", p.getDB(tx).WithContext(ctx).Omit("Course", "User").Create(payment).Error)
}

func (p *PaymentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := p.getDB(tx).WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, wrapErr("get payment", err)
	}
	return &payment, nil
}

func (p *PaymentPostgreSQL) GetByPaymentIntent(ctx context.Context, tx *gorm.DB, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := p.getDB(tx).WithContext(ctx).First(&payment, "stripe_payment_intent_id = ?", intentID).Error; err != nil {
		return nil, wrapErr("get payment by intent", err)
	}
	return &payment, nil
}

func (p *PaymentPostgreSQL) GetByCheckoutSession(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := p.getDB(tx).WithContext(ctx).First(&payment, "stripe_checkout_session_id = ?", sessionID).Error; err != nil {
		return nil, wrapErr("get payment by checkout session", err)
	}
	return &payment, nil
}

func (p *PaymentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return wrapErr("update payment", p.getDB(tx).WithContext(ctx).Omit("Course", "User").Save(payment).Error)
}

func (p *PaymentPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := p.getDB(tx).WithContext(ctx).
		Preload("Course", func(db *gorm.DB) *gorm.DB { return db.Select("id", "title", "slug") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, wrapErr("list payments", err)
}

func (p *PaymentPostgreSQL) HasSucceeded(ctx context.Context, tx *gorm.DB, userID, courseID string) (bool, error) {
	var count int64
	err := p.getDB(tx).WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, models.PaymentSucceeded).
		Count(&count).Error
	return count > 0, wrapErr("check succeeded payment", err)
}

func (p *PaymentPostgreSQL) FailStalePending(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	res := p.getDB(tx).WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentPending, olderThan).
		Updates(map[string]interface{}{
			"status":         models.PaymentFailed,
			"failure_reason": "expired: no confirmation within 24h",
		})
	return res.RowsAffected, wrapErr("fail stale payments", res.Error)
}

type SubscriptionPostgreSQL struct {
	baseRepository
}

func NewSubscriptionPostgreSQL(db *gorm.DB) repositories.SubscriptionRepository {
	return &SubscriptionPostgreSQL{baseRepository{db: db}}
}

func (s *SubscriptionPostgreSQL) GetByStripeID(ctx context.Context, tx *gorm.DB, stripeID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.getDB(tx).WithContext(ctx).First(&sub, "stripe_subscription_id = ?", stripeID).Error; err != nil {
		return nil, wrapErr("get subscription", err)
	}
	return &sub, nil
}

func (s *SubscriptionPostgreSQL) Save(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return wrapErr("save subscription", s.getDB(tx).WithContext(ctx).Save(sub).Error)
}

func (s *SubscriptionPostgreSQL) ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	res := s.getDB(tx).WithContext(ctx).Model(&models.Subscription{}).
		Where("status IN ? AND current_period_end IS NOT NULL AND current_period_end < ?",
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionCancelled, models.SubscriptionPastDue}, now).
		Update("status", models.SubscriptionExpired)
	return res.RowsAffected, wrapErr("expire subscriptions", res.Error)
}
