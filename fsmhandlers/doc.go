// Package fsmhandlers provides HTTP middleware for the fsmmux router.
//
// Middleware that must also see unmatched requests wraps the whole router
// with fsmmux.Chain. A typical order, outermost first:
//
//	h := fsmmux.Chain(r, requestID, logging, metrics, compression, recovery)
//
// Logging and metrics outside recovery still record a panicking request,
// as a 500.
//
// # Request ID Middleware
//
// RequestIDMiddleware generates or propagates a request ID header and
// starts the fsmmux.Dispatch record the other layers report from:
//
//	requestID, err := fsmhandlers.RequestIDMiddleware(fsmhandlers.RequestIDConfig{
//	    Generator: "uuidv7",
//	})
//
// # Recovery Middleware
//
// RecoveryMiddleware turns handler panics into 500 responses:
//
//	recovery := fsmhandlers.RecoveryMiddleware(fsmhandlers.RecoveryConfig{
//	    Logger: slog.Default(),
//	})
//
// # Logging Middleware
//
// LoggingMiddleware writes one structured access log record per request,
// with the handler index the router resolved:
//
//	logging := fsmhandlers.LoggingMiddleware(fsmhandlers.LoggingConfig{
//	    Logger: logger,
//	})
//
// # Metrics Middleware
//
// MetricsMiddleware counts requests and observes latencies per route with
// Prometheus collectors; MetricsHandler exposes them:
//
//	metrics, err := fsmhandlers.MetricsMiddleware(fsmhandlers.MetricsConfig{
//	    Registerer: reg,
//	})
//
// # Compression Middleware
//
// CompressionMiddleware negotiates gzip, deflate or br from Accept-Encoding.
// With Smallest set it sends whichever accepted coding comes out smaller,
// or the body as it is when neither does:
//
//	compression, err := fsmhandlers.CompressionMiddleware(fsmhandlers.CompressionConfig{
//	    MinLength: 256,
//	    Smallest:  true,
//	})
package fsmhandlers
