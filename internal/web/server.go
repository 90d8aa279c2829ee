// Package web serves the dashboard's read-only status API.
package web

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/observability"
	"pert-dashboard/internal/realtime"
	"pert-dashboard/internal/storage"
)

// Channel exposes the push channel's state.
type Channel interface {
	State() domain.ChannelState
	Endpoint() string
}

// Session exposes the task set and comparison history.
type Session interface {
	Tasks(ctx context.Context) ([]domain.Task, error)
	LastComparison() *domain.ComparisonResult
	Comparisons(ctx context.Context, limit int) ([]*domain.ComparisonRecord, error)
}

// Options configures the Server. Channel and Feed are required.
type Options struct {
	Channel Channel
	Feed    *realtime.Feed
	Session Session            // optional
	Events  storage.EventStore // optional archive
	Logger  *log.Logger
	Now     func() time.Time
}

// Server is the status API server.
type Server struct {
	router  *gin.Engine
	channel Channel
	feed    *realtime.Feed
	session Session
	events  storage.EventStore
	logger  *log.Logger
	now     func() time.Time
	started time.Time
}

// NewServer creates the server and registers all routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		channel: opts.Channel,
		feed:    opts.Feed,
		session: opts.Session,
		events:  opts.Events,
		logger:  logger,
		now:     now,
		started: now(),
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(observability.Handler()))
	router.GET("/status", s.handleStatus)

	router.GET("/updates", s.handleUpdates)
	router.DELETE("/updates", s.handleClearUpdates)

	router.GET("/tasks", s.handleTasks)
	router.GET("/comparisons", s.handleComparisons)
	router.GET("/comparisons/latest", s.handleLatestComparison)
	router.GET("/events", s.handleArchivedEvents)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting HTTP server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status       string    `json:"status"`
	Channel      string    `json:"channel"`
	Endpoint     string    `json:"endpoint"`
	FeedLength   int       `json:"feed_length"`
	FeedCapacity int       `json:"feed_capacity"`
	Uptime       string    `json:"uptime"`
	Started      time.Time `json:"started"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:       "running",
		Channel:      s.channel.State().String(),
		Endpoint:     s.channel.Endpoint(),
		FeedLength:   s.feed.Len(),
		FeedCapacity: s.feed.Capacity(),
		Uptime:       s.now().Sub(s.started).Truncate(time.Second).String(),
		Started:      s.started,
	})
}

func (s *Server) handleUpdates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"updates": s.feed.Snapshot()})
}

func (s *Server) handleClearUpdates(c *gin.Context) {
	s.feed.Clear()
	observability.UpdateFeedSize(0)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTasks(c *gin.Context) {
	if s.session == nil {
		c.JSON(http.StatusOK, gin.H{"tasks": []domain.Task{}})
		return
	}

	tasks, err := s.session.Tasks(c.Request.Context())
	if err != nil {
		s.fail(c, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleComparisons(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	if s.session == nil {
		c.JSON(http.StatusOK, gin.H{"comparisons": []*domain.ComparisonRecord{}})
		return
	}

	records, err := s.session.Comparisons(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "list comparisons", err)
		return
	}
	if records == nil {
		records = []*domain.ComparisonRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"comparisons": records})
}

func (s *Server) handleLatestComparison(c *gin.Context) {
	var latest *domain.ComparisonResult
	if s.session != nil {
		latest = s.session.LastComparison()
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no comparison yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) handleArchivedEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event archive disabled"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	records, err := s.events.Recent(ctx, limit)
	if err != nil {
		s.fail(c, "list archived events", err)
		return
	}
	total, err := s.events.Count(ctx)
	if err != nil {
		s.fail(c, "count archived events", err)
		return
	}
	if records == nil {
		records = []*domain.EventRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"events": records, "total": total})
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	s.logger.Printf("%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}

// parseLimit reads the optional ?limit= query parameter. It writes a 400
// response and returns false for a malformed value.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return storage.DefaultRecentLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return limit, true
}
