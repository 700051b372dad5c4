package fsmhandlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitalvas/pathfsm/fsmmux"
)

// MetricsConfig configures the Metrics middleware behaviour.
type MetricsConfig struct {
	// Registerer receives the collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Namespace prefixes metric names. Defaults to "pathfsm".
	Namespace string

	// Buckets are the latency histogram buckets in seconds. Defaults to
	// prometheus.DefBuckets.
	Buckets []float64
}

// UnmatchedRoute is the route label of requests no registered route
// served.
const UnmatchedRoute = "unmatched"

// MetricsMiddleware returns a middleware that counts requests and records
// their latency, labelled by route and status code. The route label is the
// route name, or its handler index when the route is unnamed.
//
// Registering the middleware twice against the same registerer reuses the
// existing collectors.
func MetricsMiddleware(cfg MetricsConfig) (fsmmux.MiddlewareFunc, error) {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "pathfsm"
	}

	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by matched route and status code.",
	}, []string{"route", "code"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by matched route.",
		Buckets:   buckets,
	}, []string{"route"})

	var err error
	if requests, err = registerOrReuse(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = registerOrReuse(reg, duration); err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, d := fsmmux.TrackDispatch(r)
			start := time.Now()
			sw := newStatusResponseWriter(w)

			next.ServeHTTP(sw, r)

			label := routeLabel(d)
			requests.WithLabelValues(label, strconv.Itoa(sw.status)).Inc()
			duration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		})
	}, nil
}

// MetricsHandler returns a handler exposing the collectors of g.
// A nil gatherer selects prometheus.DefaultGatherer.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func routeLabel(d *fsmmux.Dispatch) string {
	if !d.Matched() {
		return UnmatchedRoute
	}
	route := d.Route
	if name := route.GetName(); name != "" {
		return name
	}
	return strconv.Itoa(route.GetIndex())
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
