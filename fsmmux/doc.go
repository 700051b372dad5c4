// Package fsmmux dispatches HTTP requests through a table-driven path
// matcher.
//
// The matcher maps the request path to a handler index; the router keeps
// one handler per index and falls back to NotFoundHandler when the matcher
// reports fsm.NoMatch or no handler is registered for the index.
//
//	table, err := tablefile.Load("routes.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	built, err := table.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := fsmmux.NewRouter(built)
//	r.HandleFunc(0, homeHandler).Name("home").Path("/home")
//	r.HandleFunc(1, userHandler).Name("user").Path("/users/{digit}")
//	http.ListenAndServe(":8080", r)
//
// # Middleware
//
// Middleware registered with Use wraps matched handlers only. Wrapped
// handlers are built once per route and cached:
//
//	r.Use(timingMiddleware)
//
// Chain wraps the whole router instead. Layers outside it learn how a
// request was dispatched through TrackDispatch:
//
//	h := fsmmux.Chain(r, func(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
//	        req, d := fsmmux.TrackDispatch(req)
//	        next.ServeHTTP(w, req)
//	        log.Printf("%s -> %d", req.URL.Path, d.Index)
//	    })
//	})
//
// # Route Context
//
// Inside a matched handler, CurrentRoute and HandlerIndex report which
// table route was selected:
//
//	func userHandler(w http.ResponseWriter, r *http.Request) {
//	    idx, _ := fsmmux.HandlerIndex(r)
//	    fmt.Fprintf(w, "route %d (%s)", idx, fsmmux.CurrentRoute(r).GetName())
//	}
package fsmmux
