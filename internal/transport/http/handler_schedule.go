package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookline/backend/internal/domain"
)

type setScheduleRequest struct {
	Timezone string `json:"timezone" binding:"required"`
}

func (s *Server) setProviderSchedule(c *gin.Context) {
	var req setScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	sched, err := s.svc.SetProviderSchedule(c.Request.Context(), domain.ProviderSchedule{
		ProviderID: c.Param("id"),
		Timezone:   req.Timezone,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) listWorkingHours(c *gin.Context) {
	providerID := c.Param("id")
	rows, err := s.svc.ListWorkingHours(c.Request.Context(), providerID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": providerID, "hours": rows})
}

func (s *Server) listBlockedTimes(c *gin.Context) {
	providerID := c.Param("id")
	date, err := time.ParseInLocation(dateLayout, c.Query("date"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "date must be YYYY-MM-DD"})
		return
	}
	blocks, err := s.svc.ListBlockedTimes(c.Request.Context(), providerID, date)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": providerID, "blocked_times": blocks})
}

type workingHoursRow struct {
	Weekday          int16 `json:"weekday" binding:"required"`
	StartMinute      int   `json:"start_minute"`
	EndMinute        int   `json:"end_minute" binding:"required"`
	BreakStartMinute *int  `json:"break_start_minute"`
	BreakEndMinute   *int  `json:"break_end_minute"`
}

type replaceWorkingHoursRequest struct {
	Hours []workingHoursRow `json:"hours"`
}

func (s *Server) replaceWorkingHours(c *gin.Context) {
	providerID := c.Param("id")
	var req replaceWorkingHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	rows := make([]domain.WorkingHours, 0, len(req.Hours))
	for _, h := range req.Hours {
		rows = append(rows, domain.WorkingHours{
			ProviderID:       providerID,
			Weekday:          h.Weekday,
			StartMinute:      h.StartMinute,
			EndMinute:        h.EndMinute,
			BreakStartMinute: h.BreakStartMinute,
			BreakEndMinute:   h.BreakEndMinute,
		})
	}
	if err := s.svc.ReplaceWorkingHours(c.Request.Context(), providerID, rows); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": providerID, "replaced": len(rows)})
}

type addBlockedTimeRequest struct {
	Date          string  `json:"date" binding:"required"`
	StartMinute   *int    `json:"start_minute"`
	EndMinute     *int    `json:"end_minute"`
	Reason        string  `json:"reason"`
	Recurrence    string  `json:"recurrence"`
	RecurrenceEnd *string `json:"recurrence_end"`
}

func (s *Server) addBlockedTime(c *gin.Context) {
	var req addBlockedTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "date must be YYYY-MM-DD"})
		return
	}

	block := domain.BlockedTime{
		ProviderID:  c.Param("id"),
		Date:        date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Reason:      req.Reason,
		Recurrence:  domain.BlockRecurrence(req.Recurrence),
	}
	if req.RecurrenceEnd != nil {
		end, err := time.ParseInLocation(dateLayout, *req.RecurrenceEnd, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "recurrence_end must be YYYY-MM-DD"})
			return
		}
		block.RecurrenceEnd = &end
	}

	created, err := s.svc.AddBlockedTime(c.Request.Context(), block)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type setPolicyRequest struct {
	ProviderID              string `json:"provider_id" binding:"required"`
	DurationMinutes         int    `json:"duration_minutes" binding:"required"`
	BufferMinutes           int    `json:"buffer_minutes"`
	MinAdvanceHours         int    `json:"min_advance_hours"`
	MaxAdvanceDays          int    `json:"max_advance_days"`
	CancellationPolicyHours int    `json:"cancellation_policy_hours"`
	CancellationFeePercent  int    `json:"cancellation_fee_percent"`
	DepositRequired         bool   `json:"deposit_required"`
	PriceCents              int64  `json:"price_cents"`
}

func (s *Server) setServicePolicy(c *gin.Context) {
	var req setPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	policy, err := s.svc.SetServicePolicy(c.Request.Context(), domain.ServicePolicy{
		ServiceID:               c.Param("id"),
		ProviderID:              req.ProviderID,
		DurationMinutes:         req.DurationMinutes,
		BufferMinutes:           req.BufferMinutes,
		MinAdvanceHours:         req.MinAdvanceHours,
		MaxAdvanceDays:          req.MaxAdvanceDays,
		CancellationPolicyHours: req.CancellationPolicyHours,
		CancellationFeePercent:  req.CancellationFeePercent,
		DepositRequired:         req.DepositRequired,
		PriceCents:              req.PriceCents,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}
