package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ObservabilityConfig struct {
	ServiceName   string
	MetricsPrefix string
	LogRequests   bool
	Enabled       bool
}

// Observability traces, counts and times every gateway request. The gateway
// keeps its own prometheus registry so its HTTP metrics stay separate from the
// state machine's transition counters.
type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "market-gateway"
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "gateway"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "requests_total",
		Help:      "Total HTTP requests served, by route, method and status code.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds, by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)
	return &Observability{
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(cfg.ServiceName),
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
}

// Middleware wraps a handler for the named route. When observability is
// disabled the handler is returned untouched.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !o.cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			))
			rt := &requestTrace{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rt, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", rt.status))
			span.End()
			o.record(route, r, rt, time.Since(start))
		})
	}
}

func (o *Observability) record(route string, r *http.Request, rt *requestTrace, elapsed time.Duration) {
	status := strconv.Itoa(rt.status)
	o.requests.WithLabelValues(route, r.Method, status).Inc()
	o.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
	if o.cfg.LogRequests {
		o.logger.Info("gateway request",
			"route", route,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rt.status,
			"bytes", rt.written,
			"durationMs", elapsed.Milliseconds(),
		)
	}
}

// MetricsHandler serves the gateway's private registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// requestTrace captures the terminal status code and response size for the
// metrics labels and the access log.
type requestTrace struct {
	http.ResponseWriter
	status  int
	written int
}

func (rt *requestTrace) WriteHeader(code int) {
	rt.status = code
	rt.ResponseWriter.WriteHeader(code)
}

func (rt *requestTrace) Write(p []byte) (int, error) {
	n, err := rt.ResponseWriter.Write(p)
	rt.written += n
	return n, err
}
