// Package status serves health, stats and Prometheus metrics over HTTP.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

// idleThreshold is how long a running worker may go without a frame before
// it is reported as degraded.
const idleThreshold = 30 * time.Second

// StatsProvider is implemented by *imageingest.Worker.
type StatsProvider interface {
	Stats() imageingest.WorkerStats
}

// Health is the body of /readyz.
type Health struct {
	Status        string  `json:"status"` // healthy, degraded, unhealthy
	InstanceID    string  `json:"instance_id"`
	Source        string  `json:"source"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	IdleSeconds   float64 `json:"idle_seconds"`
	DropRate      float64 `json:"drop_rate"`
}

// StatsResponse is the body of /api/v1/stats.
type StatsResponse struct {
	InstanceID      string    `json:"instance_id"`
	Source          string    `json:"source"`
	Running         bool      `json:"running"`
	Received        uint64    `json:"received"`
	Processed       uint64    `json:"processed"`
	Reported        uint64    `json:"reported"`
	Skipped         uint64    `json:"skipped"`
	DecodeFailures  uint64    `json:"decode_failures"`
	ConvertFailures uint64    `json:"convert_failures"`
	Dropped         uint64    `json:"dropped"`
	TransportDrops  uint64    `json:"transport_drops"`
	LastSeq         uint64    `json:"last_seq"`
	LastFrameAt     time.Time `json:"last_frame_at,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastLatencyMS   float64   `json:"last_latency_ms"`
	ArrivalFPS      float64   `json:"arrival_fps"`
	ArrivalJitterMS float64   `json:"arrival_jitter_ms"`
	Steady          bool      `json:"steady"`
}

// Server wraps the HTTP server with its dependencies
type Server struct {
	instanceID string
	stats      StatsProvider
	router     *gin.Engine
	srv        *http.Server
	ln         net.Listener
	started    time.Time
	log        *slog.Logger
	now        func() time.Time
}

// New creates a status server. gatherer may be nil to omit /metrics.
func New(instanceID string, stats StatsProvider, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		instanceID: instanceID,
		stats:      stats,
		started:    time.Now(),
		log:        log,
		now:        time.Now,
	}
	s.setupRoutes(gatherer)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleLiveness)
	router.GET("/readyz", s.handleReadiness)

	api := router.Group("/api/v1")
	{
		api.GET("/stats", s.handleStats)
	}

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in a background goroutine. Listen errors
// are returned directly.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("image-ingest: status server started",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/healthz", "/readyz", "/api/v1/stats", "/metrics"},
	)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("image-ingest: status server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Check derives the health of the worker.
func (s *Server) Check() Health {
	st := s.stats.Stats()
	now := s.now()
	h := Health{
		Status:        "healthy",
		InstanceID:    s.instanceID,
		Source:        st.Source,
		UptimeSeconds: int64(now.Sub(s.started).Seconds()),
	}

	last := st.LastFrameAt
	if last.IsZero() {
		last = st.Started
	}
	if !last.IsZero() {
		h.IdleSeconds = now.Sub(last).Seconds()
	}
	if total := st.Received + st.TransportDrops; total > 0 {
		h.DropRate = float64(st.Dropped+st.TransportDrops) / float64(total)
	}

	switch {
	case !st.Running:
		h.Status = "unhealthy"
	case h.IdleSeconds > idleThreshold.Seconds():
		h.Status = "degraded"
	}
	return h
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReadiness(c *gin.Context) {
	h := s.Check()
	code := http.StatusOK
	if h.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.stats.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		InstanceID:      s.instanceID,
		Source:          st.Source,
		Running:         st.Running,
		Received:        st.Received,
		Processed:       st.Processed,
		Reported:        st.Reported,
		Skipped:         st.Skipped,
		DecodeFailures:  st.DecodeFailures,
		ConvertFailures: st.ConvertFailures,
		Dropped:         st.Dropped,
		TransportDrops:  st.TransportDrops,
		LastSeq:         st.LastSeq,
		LastFrameAt:     st.LastFrameAt,
		LastError:       st.LastError,
		LastLatencyMS:   float64(st.LastLatency.Microseconds()) / 1000,
		ArrivalFPS:      st.ArrivalFPS,
		ArrivalJitterMS: st.ArrivalJitter * 1000,
		Steady:          st.Steady,
	})
}
