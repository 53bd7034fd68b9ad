package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/service"
)

// ValidateTicket - POST /api/staff/validate
func (h *Handlers) ValidateTicket(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.ValidateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict, err := h.services.Redemption.Validate(c.Request.Context(), req.RawCode, p.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) && verdict != nil {
			c.JSON(http.StatusNotFound, verdict)
			return
		}
		handleServiceError(c, "validate ticket", err)
		return
	}

	c.JSON(http.StatusOK, verdict)
}

// GetStats - GET /api/staff/stats
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.services.Reports.Stats(c.Request.Context())
	if err != nil {
		handleServiceError(c, "get stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportAttendees - GET /api/staff/events/:id/export.csv
// Inactive events can be exported too.
func (h *Handlers) ExportAttendees(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.services.Reports.ExportCSV(c.Request.Context(), eventID, &buf); err != nil {
		handleServiceError(c, "export attendees", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, service.ExportFilename(eventID)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
