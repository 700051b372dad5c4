package fsmhandlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vitalvas/pathfsm/fsm"
	"github.com/vitalvas/pathfsm/fsmmux"
)

// LoggingConfig configures the Logging middleware behaviour.
type LoggingConfig struct {
	// Logger receives one record per request. Defaults to slog.Default().
	Logger *slog.Logger

	// Level is the level of successful requests. Responses with a 5xx
	// status are logged at error level. Defaults to slog.LevelInfo.
	Level slog.Level

	// SkipFunc, when it returns true, suppresses the record for a request.
	SkipFunc func(r *http.Request) bool
}

// LoggingMiddleware returns a middleware that writes a structured access
// log record after each request: method, path, status, response size,
// duration, request ID, and the handler index and route name the router
// resolved. It works both around the whole router and through Router.Use.
func LoggingMiddleware(cfg LoggingConfig) fsmmux.MiddlewareFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.SkipFunc != nil && cfg.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			r, d := fsmmux.TrackDispatch(r)
			start := time.Now()
			sw := newStatusResponseWriter(w)

			next.ServeHTTP(sw, r)

			level := cfg.Level
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", fsm.Path(r.URL.RequestURI())),
				slog.Int("status", sw.status),
				slog.Int("bytes", sw.bytes),
				slog.Duration("duration", time.Since(start)),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			attrs = append(attrs, dispatchAttrs(d)...)

			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}

// dispatchAttrs describes how the router resolved a request. The handler
// index is reported even when no route is registered for it.
func dispatchAttrs(d *fsmmux.Dispatch) []slog.Attr {
	if d == nil || d.Index == fsm.NoMatch {
		return nil
	}
	attrs := []slog.Attr{slog.Int("handler_index", d.Index)}
	if d.Route != nil && d.Route.GetName() != "" {
		attrs = append(attrs, slog.String("route", d.Route.GetName()))
	}
	return attrs
}
