package fsmhandlers

import "net/http"

// statusResponseWriter records the status code and body size written
// through it.
type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newStatusResponseWriter(w http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (sw *statusResponseWriter) WriteHeader(statusCode int) {
	if sw.wroteHeader {
		return
	}

	sw.wroteHeader = true
	sw.status = statusCode
	sw.ResponseWriter.WriteHeader(statusCode)
}

func (sw *statusResponseWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}

	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n

	return n, err
}

// Flush implements http.Flusher when the underlying writer does.
func (sw *statusResponseWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		if !sw.wroteHeader {
			sw.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for middleware compatibility.
func (sw *statusResponseWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
