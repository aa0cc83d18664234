package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// streamEvents handles GET /api/v1/events?topic=provider:{id}&topic=service:{id}
// as a server-sent event stream. Delivery is best-effort; clients that fall
// behind miss events and are expected to re-fetch availability.
func (s *Server) streamEvents(c *gin.Context) {
	topics := c.QueryArray("topic")
	if len(topics) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "at least one topic is required"})
		return
	}
	for _, t := range topics {
		if !strings.HasPrefix(t, "provider:") && !strings.HasPrefix(t, "service:") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "topics must be provider:{id} or service:{id}"})
			return
		}
	}

	sub := s.hub.Subscribe(topics...)
	defer sub.Close()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		}
	})
}
