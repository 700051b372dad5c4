package fsmmux

import (
	"errors"
	"maps"
	"net/http"
	"path"
	"slices"
	"sync"

	"github.com/vitalvas/pathfsm/fsm"
)

// SkipRoute is returned by a WalkFunc to stop the walk without an error.
var SkipRoute = errors.New("skip remaining routes") //nolint:revive,staticcheck // mirrors filepath.SkipAll

// WalkFunc is called by Walk for each registered route in handler index
// order.
type WalkFunc func(route *Route) error

// Router dispatches requests by the handler index the matcher returns.
//
// Routes and middleware must be registered before the router starts
// serving; ServeHTTP is safe for concurrent use afterwards.
type Router struct {
	// NotFoundHandler is called when the matcher reports no match or no
	// handler is registered for the matched index. If nil,
	// http.NotFoundHandler() is used.
	NotFoundHandler http.Handler

	matcher     fsm.PathMatcher
	routes      map[int]*Route
	namedRoutes map[string]*Route
	middlewares []MiddlewareFunc

	// handlerCache holds the middleware-wrapped handler per route.
	handlerCache sync.Map // map[*Route]http.Handler

	cleanPath bool
}

// NewRouter returns a router dispatching through m.
func NewRouter(m fsm.PathMatcher) *Router {
	return &Router{
		matcher:     m,
		routes:      make(map[int]*Route),
		namedRoutes: make(map[string]*Route),
	}
}

// CleanPath makes the router remove dot segments and duplicate slashes
// from the request path before matching.
func (r *Router) CleanPath(value bool) *Router {
	r.cleanPath = value
	return r
}

// Handle registers the handler for a handler index. Registering an index
// twice replaces the earlier route.
func (r *Router) Handle(index int, handler http.Handler) *Route {
	if index < 0 {
		panic("fsmmux: negative handler index")
	}
	route := &Route{router: r, index: index, handler: handler}
	route.staticCtx = &routeContext{route: route}
	if old := r.routes[index]; old != nil && old.name != "" {
		delete(r.namedRoutes, old.name)
	}
	r.routes[index] = route
	return route
}

// HandleFunc registers a handler function for a handler index.
func (r *Router) HandleFunc(index int, f func(http.ResponseWriter, *http.Request)) *Route {
	return r.Handle(index, http.HandlerFunc(f))
}

// Get returns the route registered under name, or nil.
func (r *Router) Get(name string) *Route {
	return r.namedRoutes[name]
}

// Route returns the route registered for a handler index, or nil.
func (r *Router) Route(index int) *Route {
	return r.routes[index]
}

// Walk calls walkFn for every registered route in handler index order.
func (r *Router) Walk(walkFn WalkFunc) error {
	for _, index := range slices.Sorted(maps.Keys(r.routes)) {
		err := walkFn(r.routes[index])
		if err == SkipRoute {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Use appends middleware to the chain applied to matched handlers.
func (r *Router) Use(mwf ...MiddlewareFunc) {
	r.middlewares = append(r.middlewares, mwf...)
}

// Match returns the route the request path selects.
func (r *Router) Match(req *http.Request) (*Route, bool) {
	_, route := r.lookup(req)
	return route, route != nil
}

// ServeHTTP dispatches the handler of the matched route. When the request
// carries a Dispatch, the outcome is recorded in it first.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	index, route := r.lookup(req)
	if d := dispatchFrom(req.Context()); d != nil {
		d.Index = index
		d.Route = route
	}

	if route == nil {
		handler := r.NotFoundHandler
		if handler == nil {
			handler = defaultNotFoundHandler
		}
		handler.ServeHTTP(w, req)
		return
	}

	r.handlerFor(route).ServeHTTP(w, setRouteContext(req, route))
}

// lookup returns the handler index the matcher selects and the route
// registered for it. route is nil when nothing can serve the request;
// index may still be a handler index the table accepts.
func (r *Router) lookup(req *http.Request) (int, *Route) {
	index := r.matcher.Match(r.target(req))
	if index == fsm.NoMatch {
		return index, nil
	}
	route := r.routes[index]
	if route == nil || route.handler == nil {
		return index, nil
	}
	return index, route
}

// target returns the request path and query in the form the table was
// compiled against.
func (r *Router) target(req *http.Request) string {
	u := req.URL
	if r.cleanPath {
		cleaned := *u
		cleaned.Path = cleanPath(u.Path)
		cleaned.RawPath = ""
		u = &cleaned
	}
	return u.RequestURI()
}

func (r *Router) handlerFor(route *Route) http.Handler {
	if len(r.middlewares) == 0 {
		return route.handler
	}
	if cached, ok := r.handlerCache.Load(route); ok {
		return cached.(http.Handler)
	}
	wrapped := r.applyMiddleware(route.handler)
	actual, _ := r.handlerCache.LoadOrStore(route, wrapped)
	return actual.(http.Handler)
}

// applyMiddleware wraps the handler with all registered middleware.
func (r *Router) applyMiddleware(handler http.Handler) http.Handler {
	return Chain(handler, r.middlewares...)
}

var defaultNotFoundHandler = http.NotFoundHandler()

// cleanPath returns the canonical path for p, eliminating . and ..
// elements per RFC 3986 Section 5.2.4.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	// path.Clean removes trailing slash except for root;
	// put the trailing slash back if necessary.
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}
	return np
}
