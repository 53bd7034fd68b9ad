package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/service"
)

// ConfirmPayment - POST /api/payments/confirm
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Payments.ConfirmInteractive(c.Request.Context(), p.UserID, req.PaymentID.String())
	if err != nil {
		handleServiceError(c, "confirm payment", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// PaymentWebhook - POST /api/payments/webhook
// The gateway retries anything that is not a 2xx, so only transient failures are
// answered with an error status.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	n := notificationFrom(c)
	log := logger.WithContext(c.Request.Context()).With("payment_id", n.PaymentID, "topic", n.Topic)

	result, err := h.services.Payments.HandleNotification(c.Request.Context(), n)
	switch {
	case err == nil && result == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":            "processed",
			"reservation_id":    result.Reservation.ID,
			"state":             result.Reservation.State,
			"already_processed": result.AlreadyProcessed,
		})
	case errors.Is(err, apperrors.ErrUnauthorized):
		log.Warn("Rejected payment notification", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
	case service.IsPermanent(err):
		log.Warn("Dropping payment notification", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": err.Error()})
	case errors.Is(err, apperrors.ErrGatewayUnavailable):
		log.Error("Payment lookup failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
	default:
		log.Error("Failed to process payment notification", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process notification"})
	}
}

// notificationFrom reads the payment id from the query string first, then the body
func notificationFrom(c *gin.Context) service.Notification {
	n := service.Notification{
		PaymentID: c.Query("data.id"),
		Topic:     c.Query("type"),
		Signature: c.GetHeader("x-signature"),
		RequestID: c.GetHeader("x-request-id"),
	}
	if n.PaymentID == "" {
		n.PaymentID = c.Query("id")
	}
	if n.Topic == "" {
		n.Topic = c.Query("topic")
	}

	var body models.PaymentNotificationPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			logger.WithContext(c.Request.Context()).Debug("Unreadable notification body", "error", err)
		}
	}
	if n.PaymentID == "" {
		n.PaymentID = body.Data.ID.String()
	}
	if n.PaymentID == "" {
		n.PaymentID = body.ID.String()
	}
	if n.Topic == "" {
		n.Topic = body.Type
	}
	if n.Topic == "" {
		n.Topic = body.Topic
	}
	return n
}
