package fsmmux

import "net/http"

// Route is the handler registered for one handler index.
type Route struct {
	router  *Router
	index   int
	name    string
	path    string
	handler http.Handler

	staticCtx *routeContext
}

// Name sets the route name used by Router.Get.
func (r *Route) Name(name string) *Route {
	if r.name != "" {
		delete(r.router.namedRoutes, r.name)
	}
	r.name = name
	if name != "" {
		r.router.namedRoutes[name] = r
	}
	return r
}

// Path records the route template the table was compiled from. It is not
// used for matching.
func (r *Route) Path(tpl string) *Route {
	r.path = tpl
	return r
}

// GetName returns the route name.
func (r *Route) GetName() string {
	return r.name
}

// GetPath returns the recorded route template.
func (r *Route) GetPath() string {
	return r.path
}

// GetIndex returns the handler index of the route.
func (r *Route) GetIndex() int {
	return r.index
}

// GetHandler returns the handler of the route, without middleware.
func (r *Route) GetHandler() http.Handler {
	return r.handler
}
