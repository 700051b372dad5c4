package fsmmux

import (
	"context"
	"net/http"

	"github.com/vitalvas/pathfsm/fsm"
)

type routeContextKey struct{}

var ctxKey = routeContextKey{}

type routeContext struct {
	route *Route
}

type dispatchKey struct{}

// Dispatch records how the router resolved a request. Middleware that
// wraps the router attaches one with TrackDispatch and reads it after the
// router has returned.
type Dispatch struct {
	// Index is the handler index the matcher returned, or fsm.NoMatch.
	// It is set even when no handler is registered for the index.
	Index int

	// Route is the route that served the request, nil when the request
	// went to the NotFound handler.
	Route *Route
}

// TrackDispatch returns a request carrying a Dispatch that the router
// fills in. A request that already carries one keeps it, so every
// middleware layer shares the same record. Inside a matched handler the
// record starts out filled from the current route.
func TrackDispatch(r *http.Request) (*http.Request, *Dispatch) {
	if d := dispatchFrom(r.Context()); d != nil {
		return r, d
	}
	d := &Dispatch{Index: fsm.NoMatch}
	if route := CurrentRoute(r); route != nil {
		d.Index = route.index
		d.Route = route
	}
	return r.WithContext(context.WithValue(r.Context(), dispatchKey{}, d)), d
}

// Matched reports whether a registered route served the request.
func (d *Dispatch) Matched() bool {
	return d != nil && d.Route != nil
}

func dispatchFrom(ctx context.Context) *Dispatch {
	d, _ := ctx.Value(dispatchKey{}).(*Dispatch)
	return d
}

// CurrentRoute returns the matched route for the current request, if any.
// Inside a matched handler it is read from the request context; outside
// the router it is available once the router has returned, provided the
// request was tracked with TrackDispatch.
func CurrentRoute(r *http.Request) *Route {
	if rc, ok := r.Context().Value(ctxKey).(*routeContext); ok {
		return rc.route
	}
	if d := dispatchFrom(r.Context()); d != nil {
		return d.Route
	}
	return nil
}

// HandlerIndex returns the handler index the matcher selected for the
// current request.
func HandlerIndex(r *http.Request) (int, bool) {
	if route := CurrentRoute(r); route != nil {
		return route.index, true
	}
	if d := dispatchFrom(r.Context()); d != nil && d.Index != fsm.NoMatch {
		return d.Index, true
	}
	return 0, false
}

// SetRoute stores route in the request context. This is intended for
// testing route handlers.
func SetRoute(r *http.Request, route *Route) *http.Request {
	return setRouteContext(r, route)
}

// setRouteContext stores the matched route in the request context. The
// context value is built once per route.
func setRouteContext(r *http.Request, route *Route) *http.Request {
	rc := route.staticCtx
	if rc == nil {
		rc = &routeContext{route: route}
	}
	return r.WithContext(context.WithValue(r.Context(), ctxKey, rc))
}
