package errors

import "errors"

var (
	ErrValidation         = errors.New("invalid request")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNotFound           = errors.New("not found")
	ErrPaymentRejected    = errors.New("payment rejected")
	ErrPaymentPending     = errors.New("payment not finished yet")
	ErrReservationClosed  = errors.New("reservation is no longer pending")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrUnauthorized       = errors.New("user is not authorized")
	ErrForbidden          = errors.New("operation is forbidden for user")
)
