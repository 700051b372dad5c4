// Package server wires a table file, the fsmmux router and the fsmhandlers
// middleware into an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"

	"github.com/vitalvas/pathfsm/fsm"
	"github.com/vitalvas/pathfsm/fsm/tablefile"
	"github.com/vitalvas/pathfsm/fsmhandlers"
	"github.com/vitalvas/pathfsm/fsmmux"
	"github.com/vitalvas/pathfsm/internal/config"
)

// Server serves the responses configured for each route of a table.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	table    *tablefile.Table
	router   *fsmmux.Router
	registry *prometheus.Registry
	handler  http.Handler
}

// New loads the table named by cfg and builds the handler chain.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := tablefile.Load(cfg.Table)
	if err != nil {
		return nil, err
	}
	table, err := file.Build()
	if err != nil {
		return nil, fmt.Errorf("server: build %s: %w", cfg.Table, err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		table:  table,
		router: fsmmux.NewRouter(table),
	}

	notFound, err := newResponse(cfg.NotFound, http.StatusNotFound)
	if err != nil {
		return nil, fmt.Errorf("server: not_found: %w", err)
	}
	s.router.NotFoundHandler = notFound

	for _, route := range file.Routes {
		rc, ok := cfg.Responses[route.Name]
		if !ok {
			rc = config.Response{Body: routeLabel(route) + "\n"}
		}
		h, err := newResponse(rc, http.StatusOK)
		if err != nil {
			return nil, fmt.Errorf("server: response %q: %w", routeLabel(route), err)
		}
		s.router.Handle(route.Index, h).Name(route.Name).Path(route.Path)
	}

	s.checkRoutes(file)

	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}

	logger.Info("table loaded",
		"table", cfg.Table,
		"variant", table.Variant.String(),
		"cell_bits", table.CellBits,
		"cells", table.Cells,
		"routes", len(file.Routes),
	)

	return s, nil
}

// checkRoutes warns about handler indexes the table and the route list
// disagree on.
func (s *Server) checkRoutes(file *tablefile.File) {
	for _, id := range s.table.AcceptIDs {
		if _, ok := file.RouteByIndex(id); !ok {
			s.logger.Warn("accept id has no route", "index", id)
		}
	}
	for _, route := range file.Routes {
		if !slices.Contains(s.table.AcceptIDs, route.Index) {
			s.logger.Warn("route is never matched", "index", route.Index, "name", route.Name)
		}
	}
}

// setupMiddleware wraps the router, outermost first, in request ID,
// access log, metrics, compression and panic recovery. Logging and
// metrics sit outside recovery so a panicking request is still logged and
// counted as a 500.
func (s *Server) setupMiddleware() error {
	requestID, err := fsmhandlers.RequestIDMiddleware(fsmhandlers.RequestIDConfig{
		HeaderName:    s.cfg.RequestID.Header,
		Generator:     s.cfg.RequestID.Generator,
		TrustIncoming: s.cfg.RequestID.TrustIncoming,
	})
	if err != nil {
		return fmt.Errorf("server: request id: %w", err)
	}

	mws := []fsmmux.MiddlewareFunc{
		requestID,
		fsmhandlers.LoggingMiddleware(fsmhandlers.LoggingConfig{
			Logger: s.logger,
		}),
	}

	if s.cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		mw, err := fsmhandlers.MetricsMiddleware(fsmhandlers.MetricsConfig{
			Registerer: s.registry,
		})
		if err != nil {
			return fmt.Errorf("server: metrics: %w", err)
		}
		mws = append(mws, mw)
	}

	if c := s.cfg.Compression; c.Enabled {
		mw, err := fsmhandlers.CompressionMiddleware(fsmhandlers.CompressionConfig{
			Level:     c.Level,
			MinLength: c.MinLength,
			Encodings: c.Encodings(),
			Smallest:  c.Smallest(),
		})
		if err != nil {
			return fmt.Errorf("server: compression: %w", err)
		}
		mws = append(mws, mw)
	}

	mws = append(mws, fsmhandlers.RecoveryMiddleware(fsmhandlers.RecoveryConfig{
		Logger: s.logger,
	}))

	routed := fsmmux.Chain(s.router, mws...)

	if s.registry == nil {
		s.handler = routed
		return nil
	}

	metrics := fsmhandlers.MetricsHandler(s.registry)
	metricsPath := s.cfg.Metrics.Path
	s.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == metricsPath {
			metrics.ServeHTTP(w, r)
			return
		}
		routed.ServeHTTP(w, r)
	})
	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the route table dispatcher.
func (s *Server) Router() *fsmmux.Router {
	return s.router
}

// Match returns the handler index the table selects for target, or
// fsm.NoMatch.
func (s *Server) Match(target string) int {
	return s.table.Match(target)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       s.idleTimeout(),
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			"addr", ln.Addr().String(),
			"max_connections", s.cfg.MaxConnections,
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("server shutting down", "reason", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("server exited")
	return nil
}

// idleTimeout returns the keep-alive timeout. With a connection limit an
// idle connection holds a slot, so zero falls back to ReadHeaderTimeout
// instead of keeping idle connections open indefinitely.
func (s *Server) idleTimeout() time.Duration {
	if s.cfg.IdleTimeout == 0 && s.cfg.MaxConnections > 0 {
		return s.cfg.ReadHeaderTimeout
	}
	return s.cfg.IdleTimeout
}

// newResponse returns a handler writing rc. A zero status takes the given
// default. Without a configured content type, file bodies are typed by
// extension, then by content, and inline bodies as plain text.
func newResponse(rc config.Response, status int) (http.Handler, error) {
	if rc.Status != 0 {
		status = rc.Status
	}

	body := []byte(rc.Body)
	contentType := rc.ContentType
	if rc.File != "" {
		data, err := os.ReadFile(rc.File)
		if err != nil {
			return nil, err
		}
		body = data
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(rc.File))
		}
		if contentType == "" {
			contentType = http.DetectContentType(body)
		}
	}
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	length := strconv.Itoa(len(body))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Type", contentType)
		h.Set("Content-Length", length)
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = w.Write(body)
		}
	}), nil
}

func routeLabel(route tablefile.Route) string {
	if route.Name != "" {
		return route.Name
	}
	return strconv.Itoa(route.Index)
}

var _ fsm.PathMatcher = (*Server)(nil)
