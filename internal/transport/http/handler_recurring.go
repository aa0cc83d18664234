package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/service/scheduling"
)

type createSeriesRequest struct {
	CustomerID    string   `json:"customer_id" binding:"required"`
	ProviderID    string   `json:"provider_id" binding:"required"`
	StaffID       *string  `json:"staff_id"`
	ServiceID     string   `json:"service_id" binding:"required"`
	Frequency     string   `json:"frequency" binding:"required"`
	IntervalWeeks int      `json:"interval_weeks"`
	ByWeekday     []int16  `json:"by_weekday"`
	StartDate     string   `json:"start_date" binding:"required"`
	StartMinute   int      `json:"start_minute"`
	EndDate       *string  `json:"end_date"`
	MaxBookings   *int     `json:"max_bookings"`
	AutoConfirm   bool     `json:"auto_confirm"`
	SkipDates     []string `json:"skip_dates"`
}

func (s *Server) createRecurringBooking(c *gin.Context) {
	var req createSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	startDate, err := time.ParseInLocation(dateLayout, req.StartDate, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "start_date must be YYYY-MM-DD"})
		return
	}
	svcReq := scheduling.CreateSeriesRequest{
		CustomerID:    req.CustomerID,
		ProviderID:    req.ProviderID,
		StaffID:       req.StaffID,
		ServiceID:     req.ServiceID,
		Frequency:     domain.RecurrenceFrequency(req.Frequency),
		IntervalWeeks: req.IntervalWeeks,
		ByWeekday:     req.ByWeekday,
		StartDate:     startDate,
		StartMinute:   req.StartMinute,
		MaxBookings:   req.MaxBookings,
		AutoConfirm:   req.AutoConfirm,
	}
	if req.EndDate != nil {
		end, err := time.ParseInLocation(dateLayout, *req.EndDate, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "end_date must be YYYY-MM-DD"})
			return
		}
		svcReq.EndDate = &end
	}
	for _, raw := range req.SkipDates {
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "skip_dates must be YYYY-MM-DD"})
			return
		}
		svcReq.SkipDates = append(svcReq.SkipDates, d)
	}

	series, err := s.svc.CreateRecurringBooking(c.Request.Context(), svcReq)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, series)
}

func (s *Server) getRecurringBooking(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	series, err := s.svc.GetRecurringBooking(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) pauseSeries(c *gin.Context) {
	s.transitionSeries(c, s.svc.PauseSeries)
}

func (s *Server) resumeSeries(c *gin.Context) {
	s.transitionSeries(c, s.svc.ResumeSeries)
}

func (s *Server) cancelSeries(c *gin.Context) {
	s.transitionSeries(c, s.svc.CancelSeries)
}

func (s *Server) transitionSeries(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error)) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	series, err := op(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

type addExceptionRequest struct {
	Date         string     `json:"date" binding:"required"`
	Kind         string     `json:"kind" binding:"required"`
	NewStartTime *time.Time `json:"new_start_time"`
	NewEndTime   *time.Time `json:"new_end_time"`
	Reason       string     `json:"reason"`
}

func (s *Server) addException(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var req addExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "date must be YYYY-MM-DD"})
		return
	}

	exception, err := s.svc.AddException(c.Request.Context(), scheduling.AddExceptionRequest{
		SeriesID:     id,
		Date:         date,
		Kind:         domain.ExceptionKind(req.Kind),
		NewStartTime: req.NewStartTime,
		NewEndTime:   req.NewEndTime,
		Reason:       req.Reason,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exception)
}
