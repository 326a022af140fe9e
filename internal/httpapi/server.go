// Package httpapi exposes the kiosk over HTTP: health, metrics, capture control,
// the registry, attendance history and a Server-Sent Events stream.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"faceclock/internal/attendance"
	"faceclock/internal/capture"
	"faceclock/internal/events"
	"faceclock/internal/httpmiddleware"
)

// Capture is the camera control surface. A nil Capture disables the capture routes.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	Stats() capture.Stats
	ResetDebounce(ctx context.Context) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options configures the router.
type Options struct {
	Backend  attendance.Backend
	Capture  Capture
	Bus      *events.Bus
	Metrics  http.Handler
	Checks   map[string]HealthCheck
	Location *time.Location

	// BaseContext outlives requests; the camera runs under it.
	BaseContext     context.Context
	RateLimitPerMin int
	Heartbeat       time.Duration
	Logger          *slog.Logger
}

// Server holds the handlers.
type Server struct {
	registry  attendance.Backend
	capture   Capture
	bus       *events.Bus
	checks    map[string]HealthCheck
	loc       *time.Location
	base      context.Context
	heartbeat time.Duration
	log       *slog.Logger
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	s := &Server{
		registry:  opts.Backend,
		capture:   opts.Capture,
		bus:       opts.Bus,
		checks:    opts.Checks,
		loc:       opts.Location,
		base:      opts.BaseContext,
		heartbeat: opts.Heartbeat,
		log:       opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.base == nil {
		s.base = context.Background()
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 15 * time.Second
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger("/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware())

	r.GET("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/v1")
	if s.capture != nil {
		v1.GET("/capture", s.captureStatus)
		v1.POST("/capture/start", s.captureStart)
		v1.POST("/capture/stop", s.captureStop)
		v1.POST("/debounce/reset", s.debounceReset)
	}
	if s.registry != nil {
		v1.GET("/events", s.listEvents)
		v1.GET("/people", s.listPeople)
		v1.POST("/people", s.upsertPerson)
		v1.GET("/people/:id", s.getPerson)
		v1.GET("/people/:id/schedule", s.listSchedule)
		v1.POST("/people/:id/schedule", s.addSchedule)
		v1.DELETE("/schedule/:id", s.removeSchedule)
	}
	if s.bus != nil {
		v1.GET("/stream", s.stream)
	}
	return r
}

// NewHTTPServer wraps handler with the timeouts used in production.
// The write timeout is left open so the event stream can stay connected.
func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	if s.capture != nil {
		body["capture"] = s.capture.Stats().Status
	}
	c.JSON(status, body)
}
