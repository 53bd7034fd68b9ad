package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/middleware"
	"github.com/c010r/backyardbarpass/internal/service"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		services: services,
	}
}

// statusFor maps service errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrPaymentRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInsufficientStock), errors.Is(err, apperrors.ErrReservationClosed):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrPaymentPending):
		return http.StatusAccepted
	case errors.Is(err, apperrors.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError writes the mapped status; internal details are only logged
func handleServiceError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	log := logger.WithContext(c.Request.Context())

	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "operation", op, "error", err)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Failed to " + op})
		return
	}

	log.Info("Request rejected", "operation", op, "status", status, "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// principal returns the authenticated caller; JWTAuth guarantees it on protected routes
func principal(c *gin.Context) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return p, ok
}
