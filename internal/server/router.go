// Package server exposes the synthesis gateway over HTTP.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/gateway"
	"github.com/champierre/saym/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Routes.
const (
	RouteHealth     = "/health"
	RouteDocs       = "/docs"
	RouteTTS        = "/api/tts"
	RouteSetSpeaker = "/set_speaker"
	RouteMetrics    = "/metrics"
)

const unmatchedRoute = "unmatched"

// ErrGatewayRequired is returned when the router is built without a gateway.
var ErrGatewayRequired = errors.New("http router requires a gateway")

// Options configures the router.
type Options struct {
	Gateway *gateway.Gateway
	Logger  *logger.Logger
	// Metrics is optional; when nil no /metrics route is registered.
	Metrics *metrics.Metrics
}

// NewRouter builds a gin engine with recovery, request logging, metrics and
// CORS middlewares and every gateway route.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Gateway == nil {
		return nil, ErrGatewayRequired
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(opts.Logger))

	if opts.Metrics != nil {
		engine.Use(metricsMiddleware(opts.Metrics))
	}

	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	h := &handlers{gateway: opts.Gateway, log: opts.Logger}

	engine.GET(RouteHealth, h.health)
	engine.GET(RouteDocs, h.docs)
	engine.GET(RouteTTS, h.usage)
	engine.POST(RouteTTS, h.synthesize)
	engine.POST(RouteSetSpeaker, h.setSpeaker)

	if opts.Metrics != nil {
		engine.GET(RouteMetrics, gin.WrapH(opts.Metrics.Handler()))
	}

	return engine, nil
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log != nil {
			log.Info(
				"[HTTP] %s %s -> %d (%s)",
				c.Request.Method,
				c.Request.URL.Path,
				c.Writer.Status(),
				time.Since(start),
			)
		}
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		m.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// statusFor maps a gateway error to its HTTP status code.
func statusFor(err error) int {
	if gateway.IsInvalidInput(err) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
