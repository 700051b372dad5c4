package fsmmux

import "net/http"

// MiddlewareFunc is a function which receives an http.Handler and returns
// another http.Handler. It can be used to wrap handlers with additional
// behavior such as logging, authentication, etc.
type MiddlewareFunc func(http.Handler) http.Handler

// Middleware allows MiddlewareFunc to implement the Middleware interface.
func (mw MiddlewareFunc) Middleware(handler http.Handler) http.Handler {
	return mw(handler)
}

// Chain wraps h with mws so that the first middleware is the outermost.
// It is used for middleware that must also see unmatched requests.
func Chain(h http.Handler, mws ...MiddlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i].Middleware(h)
	}
	return h
}
