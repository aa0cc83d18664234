package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/service/scheduling"
	"bookline/backend/internal/store"
)

type createBookingRequest struct {
	CustomerID string    `json:"customer_id" binding:"required"`
	ProviderID string    `json:"provider_id" binding:"required"`
	StaffID    *string   `json:"staff_id"`
	ServiceID  string    `json:"service_id" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
}

func (s *Server) createBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	booking, err := s.svc.CreateBooking(c.Request.Context(), scheduling.CreateBookingRequest{
		CustomerID: req.CustomerID,
		ProviderID: req.ProviderID,
		StaffID:    req.StaffID,
		ServiceID:  req.ServiceID,
		StartTime:  req.StartTime,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (s *Server) getBooking(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	booking, err := s.svc.GetBooking(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) listBookings(c *gin.Context) {
	filter := store.BookingFilter{
		CustomerID: c.Query("customer_id"),
		ProviderID: c.Query("provider_id"),
		Status:     domain.BookingStatus(c.Query("status")),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "from must be RFC 3339"})
			return
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "to must be RFC 3339"})
			return
		}
		filter.To = t
	}

	bookings, err := s.svc.ListBookings(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (s *Server) confirmBooking(c *gin.Context) {
	s.transitionBooking(c, s.svc.ConfirmBooking)
}

func (s *Server) checkInBooking(c *gin.Context) {
	s.transitionBooking(c, s.svc.CheckInBooking)
}

func (s *Server) completeBooking(c *gin.Context) {
	s.transitionBooking(c, s.svc.CompleteBooking)
}

func (s *Server) cancelBooking(c *gin.Context) {
	s.transitionBooking(c, s.svc.CancelBooking)
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
}

func (s *Server) rescheduleBooking(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	booking, err := s.svc.RescheduleBooking(c.Request.Context(), id, req.StartTime)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) transitionBooking(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (domain.Booking, error)) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	booking, err := op(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
