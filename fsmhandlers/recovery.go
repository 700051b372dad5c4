package fsmhandlers

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/vitalvas/pathfsm/fsm"
	"github.com/vitalvas/pathfsm/fsmmux"
)

// RecoveryConfig configures the Recovery middleware behaviour.
type RecoveryConfig struct {
	// LogFunc is an optional callback invoked with the request and the
	// recovered value when a panic occurs. It takes precedence over Logger.
	LogFunc func(r *http.Request, err any)

	// Logger, when set and LogFunc is nil, receives an error record with
	// the panic value, the handler index the router resolved, and the
	// stack.
	Logger *slog.Logger
}

// RecoveryMiddleware returns a middleware that recovers from panics in
// downstream handlers. When a panic occurs it returns 500 Internal Server
// Error to the client and optionally logs the panic.
//
// A panic carrying a malformed transition table error is recovered too;
// it still surfaces through the log as an error record.
func RecoveryMiddleware(cfg RecoveryConfig) fsmmux.MiddlewareFunc {
	logFunc := cfg.LogFunc
	if logFunc == nil && cfg.Logger != nil {
		logger := cfg.Logger
		logFunc = func(r *http.Request, err any) {
			_, d := fsmmux.TrackDispatch(r)
			attrs := []slog.Attr{
				slog.Any("panic", err),
				slog.String("method", r.Method),
				slog.String("path", fsm.Path(r.URL.RequestURI())),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			}
			attrs = append(attrs, dispatchAttrs(d)...)
			attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered", attrs...)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = fsmmux.TrackDispatch(r)
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					if logFunc != nil {
						logFunc(r, err)
					}

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
