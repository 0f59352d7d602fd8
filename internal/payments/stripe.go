package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/7p-education/platform/internal/config"
)

// StripeGateway implements Gateway on the Stripe API
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
}

func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		sc:            client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(p.Email),
		Name:  stripe.String(p.Name),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, p.UserID)
	params.SetIdempotencyKey("customer-" + p.UserID)

	customer, err := g.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return customer.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.CourseTitle),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				MetadataPaymentID: p.PaymentID,
				MetadataUserID:    p.UserID,
				MetadataCourseID:  p.CourseID,
			},
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataPaymentID, p.PaymentID)
	params.AddMetadata(MetadataUserID, p.UserID)
	params.AddMetadata(MetadataCourseID, p.CourseID)
	params.SetIdempotencyKey(p.IdempotencyKey)

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	out := &CheckoutSession{ID: session.ID, URL: session.URL}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, p IntentParams) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(p.AmountMinor),
		Currency:    stripe.String(p.Currency),
		Description: stripe.String(p.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataPaymentID, p.PaymentID)
	params.AddMetadata(MetadataUserID, p.UserID)
	params.AddMetadata(MetadataCourseID, p.CourseID)
	params.SetIdempotencyKey(p.IdempotencyKey)

	intent, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := g.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return session.URL, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID, reason, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	params.SetIdempotencyKey(idempotencyKey)

	refund, err := g.sc.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create refund: %w", err)
	}
	return refund.ID, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes handled event types
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeEvent(event)
}

func decodeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}
	raw := event.Data.Raw

	switch out.Type {
	case EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		c := &CheckoutCompleted{
			SessionID: s.ID,
			PaymentID: s.Metadata[MetadataPaymentID],
			Paid:      s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		}
		if s.PaymentIntent != nil {
			c.PaymentIntentID = s.PaymentIntent.ID
		}
		if s.Customer != nil {
			c.CustomerID = s.Customer.ID
		}
		out.Checkout = c

	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		u := &IntentUpdate{IntentID: pi.ID, PaymentID: pi.Metadata[MetadataPaymentID]}
		if pi.LastPaymentError != nil {
			u.FailureReason = pi.LastPaymentError.Msg
		}
		out.Intent = u

	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		r := &ChargeRefund{}
		if ch.PaymentIntent != nil {
			r.PaymentIntentID = ch.PaymentIntent.ID
		}
		if ch.Refunds != nil && len(ch.Refunds.Data) > 0 {
			r.RefundID = ch.Refunds.Data[0].ID
		}
		out.Refund = r

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		u := &SubscriptionUpdate{
			SubscriptionID:    sub.ID,
			UserID:            sub.Metadata[MetadataUserID],
			Plan:              sub.Metadata["plan"],
			Status:            string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
		if sub.Customer != nil {
			u.CustomerID = sub.Customer.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			u.CurrentPeriodEnd = &end
		}
		if u.Plan == "" && sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			u.Plan = sub.Items.Data[0].Price.ID
		}
		out.Subscription = u
	}
	return out, nil
}
