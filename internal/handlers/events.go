package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/c010r/backyardbarpass/internal/models"
)

// ListEvents - GET /api/events?query=
func (h *Handlers) ListEvents(c *gin.Context) {
	response, err := h.services.Events.List(c.Request.Context(), c.Query("query"))
	if err != nil {
		handleServiceError(c, "list events", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetEvent - GET /api/events/:id
func (h *Handlers) GetEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	response, err := h.services.Events.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "get event", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// CreateEvent - POST /api/staff/events
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Events.Create(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, "create event", err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// CreateTier - POST /api/staff/events/:id/tiers
func (h *Handlers) CreateTier(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Events.CreateTier(c.Request.Context(), eventID, &req)
	if err != nil {
		handleServiceError(c, "create tier", err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
