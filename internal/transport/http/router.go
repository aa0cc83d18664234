// Package http is the REST and SSE surface of the scheduling engine.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/service/scheduling"
)

type Options struct {
	RateLimit  rate.Limit
	RateBurst  int
	CacheTTL   time.Duration
	EventQueue int
}

type Server struct {
	engine *gin.Engine
	svc    *scheduling.Service
	hub    *broadcast.Broadcaster
	cache  *cache.Cache
	log    *slog.Logger
	opts   Options

	invalidator *broadcast.Subscription
}

func NewServer(svc *scheduling.Service, hub *broadcast.Broadcaster, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 32
	}

	s := &Server{
		svc:   svc,
		hub:   hub,
		cache: cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		log:   log.With(slog.String("component", "http")),
		opts:  opts,
	}
	s.engine = s.routes()

	// Slot listings are cached; evict a provider's entries as soon as its
	// availability changes.
	s.invalidator = hub.Subscribe(broadcast.TopicAll)
	go invalidateOnEvents(s.cache, s.invalidator)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close detaches the cache invalidator. The broadcaster itself is owned by
// the caller.
func (s *Server) Close() {
	s.invalidator.Close()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	api.Use(rateLimit(s.opts.RateLimit, s.opts.RateBurst))
	{
		api.GET("/availability", cacheAvailability(s.cache, s.opts.CacheTTL), s.getAvailability)

		api.POST("/bookings", s.createBooking)
		api.GET("/bookings", s.listBookings)
		api.GET("/bookings/:id", s.getBooking)
		api.PATCH("/bookings/:id/confirm", s.confirmBooking)
		api.PATCH("/bookings/:id/checkin", s.checkInBooking)
		api.PATCH("/bookings/:id/complete", s.completeBooking)
		api.PATCH("/bookings/:id/cancel", s.cancelBooking)
		api.PATCH("/bookings/:id/reschedule", s.rescheduleBooking)

		api.POST("/recurring-bookings", s.createRecurringBooking)
		api.GET("/recurring-bookings/:id", s.getRecurringBooking)
		api.PATCH("/recurring-bookings/:id/pause", s.pauseSeries)
		api.PATCH("/recurring-bookings/:id/resume", s.resumeSeries)
		api.PATCH("/recurring-bookings/:id/cancel", s.cancelSeries)
		api.POST("/recurring-bookings/:id/exceptions", s.addException)

		api.PUT("/providers/:id/schedule", s.setProviderSchedule)
		api.GET("/providers/:id/working-hours", s.listWorkingHours)
		api.PUT("/providers/:id/working-hours", s.replaceWorkingHours)
		api.GET("/providers/:id/blocked-times", s.listBlockedTimes)
		api.POST("/providers/:id/blocked-times", s.addBlockedTime)
		api.PUT("/services/:id/policy", s.setServicePolicy)

		api.GET("/events", s.streamEvents)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
