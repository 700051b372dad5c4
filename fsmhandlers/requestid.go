package fsmhandlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dchest/uniuri"
	"github.com/google/uuid"
	"github.com/vitalvas/pathfsm/fsmmux"
)

// ErrUnknownGenerator is returned for a RequestIDConfig.Generator name
// that is not registered.
var ErrUnknownGenerator = errors.New("requestid: unknown generator")

// DefaultRequestIDHeader is the header used when RequestIDConfig.HeaderName
// is empty.
const DefaultRequestIDHeader = "X-Request-ID"

const defaultMaxRequestIDLength = 128

var requestIDGenerators = map[string]func(*http.Request) string{
	"uuidv4": GenerateUUIDv4,
	"uuidv7": GenerateUUIDv7,
	"short":  GenerateShortID,
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored in the context by
// RequestIDMiddleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDConfig configures RequestIDMiddleware.
type RequestIDConfig struct {
	// HeaderName carries the ID on the request and the response.
	// Defaults to DefaultRequestIDHeader.
	HeaderName string

	// Generator names the ID generator: "uuidv4" (default), "uuidv7" or
	// "short". Ignored when GenerateFunc is set.
	Generator string

	// GenerateFunc returns a new ID. An empty result leaves the request
	// without one.
	GenerateFunc func(r *http.Request) string

	// TrustIncoming reuses the ID a client sent, as long as it is at most
	// MaxLength visible ASCII characters.
	TrustIncoming bool

	// MaxLength bounds trusted incoming IDs. Defaults to 128.
	MaxLength int
}

// RequestIDMiddleware returns the outermost middleware of a request: it
// assigns the request ID and starts the fsmmux.Dispatch record the router
// fills in, so logging, metrics and recovery layers inside it all report
// the same handler index for the request.
func RequestIDMiddleware(cfg RequestIDConfig) (fsmmux.MiddlewareFunc, error) {
	header := cfg.HeaderName
	if header == "" {
		header = DefaultRequestIDHeader
	}

	generate := cfg.GenerateFunc
	if generate == nil {
		name := cfg.Generator
		if name == "" {
			name = "uuidv4"
		}
		var ok bool
		if generate, ok = requestIDGenerators[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, cfg.Generator)
		}
	}

	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxRequestIDLength
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = fsmmux.TrackDispatch(r)

			var id string
			if cfg.TrustIncoming {
				if v := r.Header.Get(header); validRequestID(v, maxLength) {
					id = v
				}
			}
			if id == "" {
				id = generate(r)
			}

			if id != "" {
				r.Header.Set(header, id)
				w.Header().Set(header, id)
				r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validRequestID reports whether an incoming ID is safe to echo and log.
func validRequestID(id string, maxLength int) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GenerateUUIDv4 returns a random UUID (RFC 9562, section 5.4).
func GenerateUUIDv4(_ *http.Request) string {
	return uuid.New().String()
}

// GenerateUUIDv7 returns a time-ordered UUID (RFC 9562, section 5.7).
func GenerateUUIDv7(_ *http.Request) string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateShortID returns a random 16 character alphanumeric string, for
// log lines where a full UUID is too wide.
func GenerateShortID(_ *http.Request) string {
	return uniuri.New()
}
