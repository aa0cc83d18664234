package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookline/backend/internal/service/scheduling"
)

const dateLayout = "2006-01-02"

type slotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// getAvailability handles GET /api/v1/availability.
func (s *Server) getAvailability(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Query("date"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "date must be YYYY-MM-DD"})
		return
	}

	req := scheduling.SlotRequest{
		ProviderID: c.Query("provider_id"),
		ServiceID:  c.Query("service_id"),
		Date:       date,
	}
	if staff := c.Query("staff_id"); staff != "" {
		req.StaffID = &staff
	}

	slots, err := s.svc.ComputeSlots(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotResponse{Start: slot.Start, End: slot.End})
	}
	c.JSON(http.StatusOK, gin.H{
		"provider_id": req.ProviderID,
		"service_id":  req.ServiceID,
		"date":        c.Query("date"),
		"slots":       out,
	})
}
