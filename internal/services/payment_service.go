package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/payments"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

type paymentService struct {
	repo        repositories.Repository
	db          *gorm.DB
	logger      *slog.Logger
	validator   *validator.Validator
	gateway     payments.Gateway
	enrollments EnrollmentService
	publisher   events.EventPublisher
	cfg         config.StripeConfig
	now         func() time.Time
}

// NewPaymentService wires the payment flows; gateway is nil when payments are disabled
func NewPaymentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator,
	gateway payments.Gateway, enrollments EnrollmentService, publisher events.EventPublisher, cfg config.StripeConfig) PaymentService {
	return &paymentService{
		repo:        repo,
		db:          db,
		logger:      logger,
		validator:   validator,
		gateway:     gateway,
		enrollments: enrollments,
		publisher:   publisher,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *paymentService) Enabled() bool {
	return s.cfg.Enabled && s.gateway != nil
}

func (s *paymentService) currency() string {
	if s.cfg.Currency == "" {
		return "TRY"
	}
	return strings.ToUpper(s.cfg.Currency)
}

// ===== CHECKOUT =====

func (s *paymentService) CreateCheckoutSession(ctx context.Context, userID, courseID string) (*CheckoutResponse, error) {
	s.logger.Info("Creating checkout session", "user_id", userID, "course_id", courseID)

	user, course, payment, err := s.preparePurchase(ctx, userID, courseID, "checkout")
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutParams{
		PaymentID:      payment.ID,
		UserID:         user.ID,
		CourseID:       course.ID,
		CourseTitle:    course.Title,
		CustomerID:     derefString(user.StripeCustomerID),
		CustomerEmail:  user.Email,
		AmountMinor:    payments.MinorUnits(payment.Amount),
		Currency:       payment.Currency,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: payment.IdempotencyKey,
	})
	if err != nil {
		s.failPayment(ctx, payment, err.Error())
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	payment.StripeCheckoutSessionID = &session.ID
	if session.PaymentIntentID != "" {
		payment.StripePaymentIntentID = &session.PaymentIntentID
	}
	if err := s.repo.Payment().Update(ctx, s.db, payment); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	s.logger.Info("Checkout session created", "payment_id", payment.ID, "session_id", session.ID)
	return &CheckoutResponse{PaymentID: payment.ID, SessionID: session.ID, URL: session.URL}, nil
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, userID, courseID string) (*IntentResponse, error) {
	s.logger.Info("Creating payment intent", "user_id", userID, "course_id", courseID)

	user, course, payment, err := s.preparePurchase(ctx, userID, courseID, "intent")
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, payments.IntentParams{
		PaymentID:      payment.ID,
		UserID:         user.ID,
		CourseID:       course.ID,
		CustomerID:     derefString(user.StripeCustomerID),
		ReceiptEmail:   user.Email,
		AmountMinor:    payments.MinorUnits(payment.Amount),
		Currency:       payment.Currency,
		Description:    course.Title,
		IdempotencyKey: payment.IdempotencyKey,
	})
	if err != nil {
		s.failPayment(ctx, payment, err.Error())
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment.StripePaymentIntentID = &intent.ID
	if err := s.repo.Payment().Update(ctx, s.db, payment); err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}
	return &IntentResponse{PaymentID: payment.ID, ClientSecret: intent.ClientSecret}, nil
}

// preparePurchase checks the course can be bought and records a pending payment
func (s *paymentService) preparePurchase(ctx context.Context, userID, courseID, flow string) (*models.User, *models.Course, *models.Payment, error) {
	if !s.Enabled() {
		return nil, nil, nil, ErrPaymentsDisabled
	}

	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	course, err := getCourse(ctx, s.repo, s.db, courseID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !course.IsPublished() {
		return nil, nil, nil, ErrCourseNotPublished
	}
	if course.IsFree() {
		return nil, nil, nil, NewBusinessRuleError("free_course", "free courses are enrolled directly", nil)
	}

	enrollment, err := s.repo.Enrollment().Get(ctx, s.db, userID, courseID)
	if err == nil && enrollment.GrantsAccess(s.now()) {
		return nil, nil, nil, ErrAlreadyEnrolled
	}
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, nil, nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	if err := s.ensureCustomer(ctx, user); err != nil {
		return nil, nil, nil, err
	}

	meta, _ := json.Marshal(map[string]string{"flow": flow, "course_slug": course.Slug})
	payment := &models.Payment{
		UserID:         userID,
		CourseID:       courseID,
		Amount:         course.Price,
		Currency:       s.currency(),
		Status:         models.PaymentPending,
		IdempotencyKey: uuid.NewString(),
		Metadata:       datatypes.JSON(meta),
	}
	if err := s.repo.Payment().Create(ctx, s.db, payment); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return user, course, payment, nil
}

func (s *paymentService) ensureCustomer(ctx context.Context, user *models.User) error {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, payments.CustomerParams{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.FullName,
	})
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	user.StripeCustomerID = &customerID
	if err := s.repo.User().Update(ctx, s.db, user); err != nil {
		return fmt.Errorf("failed to store customer id: %w", err)
	}
	return nil
}

func (s *paymentService) failPayment(ctx context.Context, payment *models.Payment, reason string) {
	payment.Status = models.PaymentFailed
	payment.FailureReason = &reason
	if err := s.repo.Payment().Update(ctx, s.db, payment); err != nil {
		s.logger.Error("Failed to mark payment failed", "payment_id", payment.ID, "error", err)
	}
}

func (s *paymentService) CreatePortalSession(ctx context.Context, userID string) (*PortalResponse, error) {
	if !s.Enabled() {
		return nil, ErrPaymentsDisabled
	}
	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, NewBusinessRuleError("no_customer", "no billing account exists for this user yet", nil)
	}

	url, err := s.gateway.CreatePortalSession(ctx, *user.StripeCustomerID, s.cfg.PortalReturn)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}
	return &PortalResponse{URL: url}, nil
}

// ===== REFUNDS =====

func (s *paymentService) Refund(ctx context.Context, adminID, paymentID, reason string) (*models.Payment, error) {
	s.logger.Info("Refunding payment", "admin_id", adminID, "payment_id", paymentID)

	if !s.Enabled() {
		return nil, ErrPaymentsDisabled
	}
	admin, err := getUser(ctx, s.repo, s.db, adminID)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin() {
		return nil, NewPermissionError(adminID, paymentID, "payment", "refund", "admin role required")
	}

	payment, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentSucceeded {
		return nil, NewBusinessRuleError("refund_status",
			fmt.Sprintf("only succeeded payments can be refunded, payment is %s", payment.Status), ErrConflict)
	}
	if payment.StripePaymentIntentID == nil {
		return nil, NewBusinessRuleError("refund_intent", "payment has no payment intent to refund", ErrConflict)
	}

	refundID, err := s.gateway.Refund(ctx, *payment.StripePaymentIntentID, reason, "refund-"+payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}

	if err := s.markRefunded(ctx, payment, refundID, reason); err != nil {
		return nil, err
	}
	s.logger.Info("Payment refunded", "payment_id", payment.ID, "refund_id", refundID)
	return payment, nil
}

// markRefunded records the refund and revokes the course enrollment
func (s *paymentService) markRefunded(ctx context.Context, payment *models.Payment, refundID, reason string) error {
	if payment.Status == models.PaymentRefunded {
		return nil
	}
	now := s.now()
	err := withTx(ctx, s.db, func(tx *gorm.DB) error {
		payment.Status = models.PaymentRefunded
		payment.RefundedAt = &now
		if refundID != "" {
			payment.StripeRefundID = &refundID
		}
		if err := s.repo.Payment().Update(ctx, tx, payment); err != nil {
			return fmt.Errorf("failed to mark payment refunded: %w", err)
		}

		enrollment, err := s.repo.Enrollment().Get(ctx, tx, payment.UserID, payment.CourseID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil
			}
			return fmt.Errorf("failed to get enrollment: %w", err)
		}
		if enrollment.Status == models.EnrollmentCancelled {
			return nil
		}
		wasCounted := enrollment.Counted()
		enrollment.Status = models.EnrollmentCancelled
		if err := s.repo.Enrollment().Update(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("failed to cancel enrollment: %w", err)
		}
		if !wasCounted {
			return nil
		}
		return s.repo.Course().IncrementEnrollmentCount(ctx, tx, payment.CourseID, -1)
	})
	if err != nil {
		return err
	}
	s.repo.Course().InvalidateCache(ctx, payment.CourseID)

	publishEvent(ctx, s.publisher, s.logger, events.EventPaymentRefunded, payment.UserID, events.PaymentRefundedData{
		PaymentID: payment.ID,
		CourseID:  payment.CourseID,
		Amount:    payment.Amount,
		Reason:    reason,
	})
	return nil
}

// ===== WEBHOOKS =====

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.Enabled() {
		return ErrPaymentsDisabled
	}

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return NewValidationError("signature", "invalid webhook signature", nil)
		}
		return fmt.Errorf("failed to parse webhook: %w", err)
	}
	s.logger.Info("Handling payment webhook", "event_id", event.ID, "type", event.Type)

	switch event.Type {
	case payments.EventCheckoutCompleted:
		return s.onCheckoutCompleted(ctx, event.Checkout)
	case payments.EventIntentSucceeded:
		return s.onIntentSucceeded(ctx, event.Intent)
	case payments.EventIntentFailed:
		return s.onIntentFailed(ctx, event.Intent)
	case payments.EventChargeRefunded:
		return s.onChargeRefunded(ctx, event.Refund)
	case payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		return s.onSubscriptionChanged(ctx, event.Type, event.Subscription)
	default:
		s.logger.Debug("Ignoring payment webhook", "type", event.Type)
		return nil
	}
}

func (s *paymentService) onCheckoutCompleted(ctx context.Context, data *payments.CheckoutCompleted) error {
	if data == nil {
		return nil
	}
	payment, err := s.findPayment(ctx, data.PaymentID, "", data.SessionID)
	if err != nil || payment == nil {
		return err
	}
	if !data.Paid {
		s.logger.Info("Checkout completed without payment yet", "payment_id", payment.ID)
		return nil
	}
	return s.markSucceeded(ctx, payment, data.PaymentIntentID)
}

func (s *paymentService) onIntentSucceeded(ctx context.Context, data *payments.IntentUpdate) error {
	if data == nil {
		return nil
	}
	payment, err := s.findPayment(ctx, data.PaymentID, data.IntentID, "")
	if err != nil || payment == nil {
		return err
	}
	return s.markSucceeded(ctx, payment, data.IntentID)
}

func (s *paymentService) onIntentFailed(ctx context.Context, data *payments.IntentUpdate) error {
	if data == nil {
		return nil
	}
	payment, err := s.findPayment(ctx, data.PaymentID, data.IntentID, "")
	if err != nil || payment == nil {
		return err
	}
	if payment.Status != models.PaymentPending {
		return nil
	}
	s.failPayment(ctx, payment, data.FailureReason)
	return nil
}

func (s *paymentService) onChargeRefunded(ctx context.Context, data *payments.ChargeRefund) error {
	if data == nil {
		return nil
	}
	payment, err := s.findPayment(ctx, "", data.PaymentIntentID, "")
	if err != nil || payment == nil {
		return err
	}
	return s.markRefunded(ctx, payment, data.RefundID, "refunded by provider")
}

func (s *paymentService) onSubscriptionChanged(ctx context.Context, eventType string, data *payments.SubscriptionUpdate) error {
	if data == nil {
		return nil
	}
	sub, err := s.repo.Subscription().GetByStripeID(ctx, s.db, data.SubscriptionID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get subscription: %w", err)
		}
		if data.UserID == "" {
			s.logger.Warn("Subscription without user metadata", "subscription_id", data.SubscriptionID)
			return nil
		}
		sub = &models.Subscription{UserID: data.UserID, StripeSubscriptionID: data.SubscriptionID}
	}

	sub.Plan = data.Plan
	if sub.Plan == "" {
		sub.Plan = "default"
	}
	sub.Status = subscriptionStatus(data.Status)
	if eventType == payments.EventSubscriptionDeleted {
		sub.Status = models.SubscriptionCancelled
	}
	sub.CurrentPeriodEnd = data.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = data.CancelAtPeriodEnd

	if err := s.repo.Subscription().Save(ctx, s.db, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func subscriptionStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return models.SubscriptionActive
	case "canceled":
		return models.SubscriptionCancelled
	case "incomplete_expired":
		return models.SubscriptionExpired
	default:
		return models.SubscriptionPastDue
	}
}

// markSucceeded records the payment and enrolls the buyer; replays are no-ops.
// Only pending and failed payments can move to succeeded.
func (s *paymentService) markSucceeded(ctx context.Context, payment *models.Payment, intentID string) error {
	if payment.Status == models.PaymentRefunded {
		s.logger.Info("Ignoring success for refunded payment", "payment_id", payment.ID)
		return nil
	}
	transitioned := payment.Status == models.PaymentPending || payment.Status == models.PaymentFailed
	if transitioned {
		now := s.now()
		payment.Status = models.PaymentSucceeded
		payment.PaidAt = &now
		payment.FailureReason = nil
		if intentID != "" {
			payment.StripePaymentIntentID = &intentID
		}
		if err := s.repo.Payment().Update(ctx, s.db, payment); err != nil {
			return fmt.Errorf("failed to mark payment succeeded: %w", err)
		}
	}

	if _, err := s.enrollments.EnrollPaid(ctx, payment.UserID, payment.CourseID, payment.ID); err != nil && !errors.Is(err, ErrAlreadyEnrolled) {
		return fmt.Errorf("failed to enroll after payment: %w", err)
	}

	if transitioned {
		title := ""
		if course, err := getCourse(ctx, s.repo, s.db, payment.CourseID); err == nil {
			title = course.Title
		}
		publishEvent(ctx, s.publisher, s.logger, events.EventPaymentSucceeded, payment.UserID, events.PaymentSucceededData{
			PaymentID:   payment.ID,
			CourseID:    payment.CourseID,
			CourseTitle: title,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
		})
		s.logger.Info("Payment succeeded", "payment_id", payment.ID, "user_id", payment.UserID, "course_id", payment.CourseID)
	}
	return nil
}

// findPayment resolves a webhook to a local payment; unknown payments are logged and skipped
func (s *paymentService) findPayment(ctx context.Context, paymentID, intentID, sessionID string) (*models.Payment, error) {
	var (
		payment *models.Payment
		err     error
	)
	switch {
	case paymentID != "":
		payment, err = s.repo.Payment().GetByID(ctx, s.db, paymentID)
	case intentID != "":
		payment, err = s.repo.Payment().GetByPaymentIntent(ctx, s.db, intentID)
	case sessionID != "":
		payment, err = s.repo.Payment().GetByCheckoutSession(ctx, s.db, sessionID)
	default:
		return nil, nil
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Warn("Webhook for unknown payment", "payment_id", paymentID, "intent_id", intentID, "session_id", sessionID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return payment, nil
}

func (s *paymentService) ListMine(ctx context.Context, userID string) ([]*models.Payment, error) {
	if !s.Enabled() {
		return nil, ErrPaymentsDisabled
	}
	list, err := s.repo.Payment().ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return list, nil
}

func (s *paymentService) getPayment(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.repo.Payment().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
