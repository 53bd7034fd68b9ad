package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/c010r/backyardbarpass/internal/models"
)

// GetProfile - GET /api/me
func (h *Handlers) GetProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	buyer, err := h.services.Buyers.GetProfile(c.Request.Context(), p.UserID)
	if err != nil {
		handleServiceError(c, "get profile", err)
		return
	}

	c.JSON(http.StatusOK, buyer)
}

// UpsertProfile - PUT /api/me
func (h *Handlers) UpsertProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyer, err := h.services.Buyers.UpsertProfile(c.Request.Context(), p.UserID, &req)
	if err != nil {
		handleServiceError(c, "save profile", err)
		return
	}

	c.JSON(http.StatusOK, buyer)
}

// CreateReservation - POST /api/reservations
func (h *Handlers) CreateReservation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Reservations.Reserve(c.Request.Context(), p.UserID, &req)
	if err != nil {
		handleServiceError(c, "create reservation", err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListReservations - GET /api/reservations
func (h *Handlers) ListReservations(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	response, err := h.services.Reservations.List(c.Request.Context(), p.UserID)
	if err != nil {
		handleServiceError(c, "list reservations", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetReservation - GET /api/reservations/:id
func (h *Handlers) GetReservation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	response, err := h.services.Reservations.Get(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		handleServiceError(c, "get reservation", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// CancelReservation - POST /api/reservations/:id/cancel
func (h *Handlers) CancelReservation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	response, err := h.services.Reservations.Cancel(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		handleServiceError(c, "cancel reservation", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListTickets - GET /api/tickets
func (h *Handlers) ListTickets(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	response, err := h.services.Reservations.ListTickets(c.Request.Context(), p.UserID)
	if err != nil {
		handleServiceError(c, "list tickets", err)
		return
	}

	c.JSON(http.StatusOK, response)
}
