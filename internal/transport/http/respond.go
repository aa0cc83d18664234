package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookline/backend/internal/service/scheduling"
	"bookline/backend/internal/store"
)

// respondError maps service errors onto HTTP statuses. Only error kinds leak
// to clients; raw store errors stay in the logs.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		validation *scheduling.ValidationError
		conflict   *scheduling.ConflictError
		transition *scheduling.TransitionError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": validation.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "reason": string(conflict.Reason)})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid_transition",
			"from":  string(transition.From),
			"to":    string(transition.To),
		})
	default:
		s.log.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("err", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
