package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

// maxWebhookBody matches the payload ceiling Stripe documents for webhook events
const maxWebhookBody = 65536

type PaymentHandler struct {
	BaseHandler
	payments services.PaymentService
}

func NewPaymentHandler(payments services.PaymentService, logger utils.Logger, reporter reporting.Reporter) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler: NewBaseHandler(logger, reporter),
		payments:    payments,
	}
}

// Guard answers 501 on every payment route while payments are disabled
func (h *PaymentHandler) Guard() gin.HandlerFunc {
	return PaymentsGuard(h.payments.Enabled)
}

// ===== PAYMENT ENDPOINTS =====

// Checkout starts a hosted checkout for a paid course
// @Summary Create checkout session
// @Tags payments
// @Param body body models.CoursePaymentRequest true "Course to buy"
// @Success 201 {object} SuccessResponse{data=services.CheckoutResponse}
// @Failure 409 {object} ErrorResponse "Already enrolled"
// @Failure 501 {object} ErrorResponse "Payments disabled"
// @Router /payments/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.CoursePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating checkout session", "course_id", req.CourseID)

	session, err := h.payments.CreateCheckoutSession(c.Request.Context(), userID, req.CourseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, session)
}

func (h *PaymentHandler) Intent(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.CoursePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.payments.CreatePaymentIntent(c.Request.Context(), userID, req.CourseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondCreated(c, intent)
}

func (h *PaymentHandler) Portal(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	portal, err := h.payments.CreatePortalSession(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, portal)
}

func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	payments, err := h.payments.ListMine(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, payments)
}

// Refund refunds a succeeded payment and revokes the enrollment
// @Summary Refund payment
// @Tags payments
// @Param id path string true "Payment ID"
// @Param body body models.RefundRequest false "Refund reason"
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	paymentID := parseStringIDParam(c, "id")
	if paymentID == "" {
		return
	}

	var req models.RefundRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Refunding payment", "payment_id", paymentID, "admin_id", adminID)

	payment, err := h.payments.Refund(c.Request.Context(), adminID, paymentID, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, payment)
}

// Webhook receives Stripe events. It is not authenticated; the signature is checked instead.
// @Summary Stripe webhook
// @Tags payments
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "Webhook gövdesi okunamadı", nil)
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		h.handleServiceError(c, err)
		return
	}

	respondOK(c, gin.H{"received": true})
}
