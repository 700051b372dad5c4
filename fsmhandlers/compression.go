package fsmhandlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/vitalvas/pathfsm/fsmmux"
)

// Content codings understood by CompressionMiddleware.
const (
	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"
)

const defaultMaxBuffer = 1 << 20

var (
	// ErrInvalidCompressionLevel is returned for a level outside
	// [flate.HuffmanOnly, flate.BestCompression].
	ErrInvalidCompressionLevel = errors.New("compression: invalid compression level")

	// ErrUnknownEncoding is returned for an encoding other than gzip,
	// deflate or br.
	ErrUnknownEncoding = errors.New("compression: unknown encoding")
)

// CompressionConfig configures CompressionMiddleware.
type CompressionConfig struct {
	// Level is the flate level for gzip and deflate. Zero means
	// flate.DefaultCompression. Brotli uses the same number, or quality 4
	// for the default level and 0 for flate.HuffmanOnly.
	Level int

	// MinLength is the smallest body, in bytes, worth compressing.
	// Shorter responses are sent as they are.
	MinLength int

	// Encodings lists the codings offered, in order of preference when a
	// client accepts several with the same quality. Defaults to gzip,
	// deflate, then br.
	Encodings []string

	// Smallest holds back the whole body, compresses it with every
	// offered coding the client accepts, and sends the smallest result,
	// or the body as it is when no coding makes it smaller. Bodies larger
	// than MaxBuffer are streamed with the preferred coding instead.
	Smallest bool

	// MaxBuffer bounds the body Smallest holds back. Defaults to 1 MiB.
	MaxBuffer int
}

// CompressionMiddleware returns a middleware that compresses response
// bodies with gzip, deflate or brotli, as negotiated from Accept-Encoding.
//
// Responses are left alone when they already carry a Content-Encoding,
// when their Content-Type is an already compressed format, or when the
// body is shorter than MinLength.
func CompressionMiddleware(cfg CompressionConfig) (fsmmux.MiddlewareFunc, error) {
	level := cfg.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompressionLevel, cfg.Level)
	}

	offers := cfg.Encodings
	if len(offers) == 0 {
		offers = []string{EncodingGzip, EncodingDeflate, EncodingBrotli}
	}
	pools := make(map[string]*sync.Pool, len(offers))
	for _, enc := range offers {
		pool, err := writerPool(enc, level)
		if err != nil {
			return nil, err
		}
		pools[enc] = pool
	}

	maxBuffer := cfg.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxBuffer
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")

			accepted := AcceptedEncodings(r.Header.Get("Accept-Encoding"), offers...)
			if len(accepted) == 0 || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{
				ResponseWriter: w,
				pools:          pools,
				accepted:       accepted,
				minLength:      cfg.MinLength,
				holdLimit:      cfg.MinLength,
			}
			if cfg.Smallest {
				cw.holdLimit = maxBuffer
			}
			defer cw.finish()

			next.ServeHTTP(cw, r)
		})
	}, nil
}

// NegotiateEncoding returns the offered coding the Accept-Encoding header
// rates highest, or "" when the client accepts none of the offers.
func NegotiateEncoding(acceptEncoding string, offers ...string) string {
	accepted := AcceptedEncodings(acceptEncoding, offers...)
	if len(accepted) == 0 {
		return ""
	}
	return accepted[0]
}

// AcceptedEncodings returns the offers the Accept-Encoding header accepts,
// best rated first. Equal ratings keep the order of offers.
func AcceptedEncodings(acceptEncoding string, offers ...string) []string {
	if acceptEncoding == "" {
		return nil
	}

	quality := make(map[string]float64)
	for part := range strings.SplitSeq(acceptEncoding, ",") {
		if name, q := parseCoding(part); name != "" {
			quality[name] = q
		}
	}

	type rated struct {
		enc string
		q   float64
	}
	var out []rated
	for _, enc := range offers {
		q, ok := quality[enc]
		if !ok {
			q, ok = quality["*"]
		}
		if ok && q > 0 {
			out = append(out, rated{enc, q})
		}
	}
	slices.SortStableFunc(out, func(a, b rated) int {
		switch {
		case a.q > b.q:
			return -1
		case a.q < b.q:
			return 1
		default:
			return 0
		}
	})

	encs := make([]string, len(out))
	for i, r := range out {
		encs[i] = r.enc
	}
	return encs
}

// parseCoding splits "gzip;q=0.5" into its lower-cased name and quality.
// A missing quality counts as 1, a malformed one as 0.
func parseCoding(s string) (string, float64) {
	name, params, _ := strings.Cut(s, ";")
	name = strings.ToLower(strings.TrimSpace(name))

	q := 1.0
	for param := range strings.SplitSeq(params, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.TrimSpace(key) != "q" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || v < 0 || v > 1 {
			v = 0
		}
		q = v
	}
	return name, q
}

type resetWriter interface {
	io.WriteCloser
	Flush() error
	Reset(w io.Writer)
}

func writerPool(encoding string, level int) (*sync.Pool, error) {
	var newWriter func() (resetWriter, error)
	switch encoding {
	case EncodingGzip:
		newWriter = func() (resetWriter, error) { return gzip.NewWriterLevel(io.Discard, level) }
	case EncodingDeflate:
		newWriter = func() (resetWriter, error) { return flate.NewWriter(io.Discard, level) }
	case EncodingBrotli:
		quality := brotliQuality(level)
		newWriter = func() (resetWriter, error) { return brotli.NewWriterLevel(io.Discard, quality), nil }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
	if _, err := newWriter(); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompressionLevel, level)
	}
	return &sync.Pool{New: func() any {
		w, _ := newWriter()
		return w
	}}, nil
}

func brotliQuality(level int) int {
	switch level {
	case flate.DefaultCompression:
		return 4
	case flate.HuffmanOnly:
		return brotli.BestSpeed
	default:
		return level
	}
}

var precompressedTypes = []string{
	"image/", "video/", "audio/",
	"application/zip", "application/gzip", "application/x-gzip",
	"application/x-bzip2", "application/x-xz", "application/zstd",
	"application/x-7z-compressed", "application/x-rar-compressed",
}

func isPrecompressed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return slices.ContainsFunc(precompressedTypes, func(prefix string) bool {
		return strings.HasPrefix(ct, prefix)
	})
}

// compressWriter holds back the status and up to holdLimit bytes of the
// body until it knows how to send them.
type compressWriter struct {
	http.ResponseWriter
	pools     map[string]*sync.Pool
	accepted  []string
	minLength int
	holdLimit int

	status   int
	pending  []byte
	decided  bool
	encoding string
	zw       resetWriter
}

func (cw *compressWriter) WriteHeader(status int) {
	if cw.status != 0 {
		return
	}
	cw.status = status
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified {
		cw.stream("")
	}
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	if cw.status == 0 {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.decided {
		if cw.zw != nil {
			return cw.zw.Write(b)
		}
		return cw.ResponseWriter.Write(b)
	}

	cw.pending = append(cw.pending, b...)
	if len(cw.pending) > cw.holdLimit || (len(cw.pending) >= cw.minLength && cw.holdLimit == cw.minLength) {
		enc := ""
		if cw.eligible() {
			enc = cw.accepted[0]
		}
		if err := cw.stream(enc); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// eligible reports whether the held response may be compressed at all.
func (cw *compressWriter) eligible() bool {
	h := cw.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(cw.pending)
	}
	return !isPrecompressed(ct)
}

func (cw *compressWriter) writeStatus() {
	status := cw.status
	if status == 0 {
		status = http.StatusOK
	}
	cw.ResponseWriter.WriteHeader(status)
}

// stream commits to enc ("" for none) for the rest of the response and
// sends what is held.
func (cw *compressWriter) stream(enc string) error {
	if cw.decided {
		return nil
	}
	cw.decided = true
	cw.encoding = enc

	if enc != "" {
		h := cw.Header()
		h.Set("Content-Encoding", enc)
		h.Del("Content-Length")
		cw.zw = cw.pools[enc].Get().(resetWriter)
		cw.zw.Reset(cw.ResponseWriter)
	}
	cw.writeStatus()

	pending := cw.pending
	cw.pending = nil
	if len(pending) == 0 {
		return nil
	}
	if cw.zw != nil {
		_, err := cw.zw.Write(pending)
		return err
	}
	_, err := cw.ResponseWriter.Write(pending)
	return err
}

// finish sends a body that was held to the end, picking the smallest
// accepted encoding, and returns any streaming compressor to its pool.
func (cw *compressWriter) finish() {
	if !cw.decided {
		cw.sendHeld()
	}
	if cw.zw != nil {
		_ = cw.zw.Close()
		cw.zw.Reset(io.Discard)
		cw.pools[cw.encoding].Put(cw.zw)
		cw.zw = nil
	}
}

func (cw *compressWriter) sendHeld() {
	cw.decided = true
	if cw.status == 0 && len(cw.pending) == 0 {
		return
	}

	body, enc := cw.pending, ""
	if len(body) >= cw.minLength && cw.eligible() {
		for _, candidate := range cw.accepted {
			if out, ok := cw.compressHeld(candidate); ok && len(out) < len(body) {
				body, enc = out, candidate
			}
		}
	}

	h := cw.Header()
	if enc != "" {
		h.Set("Content-Encoding", enc)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	cw.writeStatus()
	_, _ = cw.ResponseWriter.Write(body)
}

func (cw *compressWriter) compressHeld(enc string) ([]byte, bool) {
	zw := cw.pools[enc].Get().(resetWriter)
	defer func() {
		zw.Reset(io.Discard)
		cw.pools[enc].Put(zw)
	}()

	var buf bytes.Buffer
	zw.Reset(&buf)
	if _, err := zw.Write(cw.pending); err != nil {
		return nil, false
	}
	if err := zw.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// Flush commits to the preferred encoding and flushes the underlying
// writer.
func (cw *compressWriter) Flush() {
	if !cw.decided {
		enc := ""
		if cw.eligible() {
			enc = cw.accepted[0]
		}
		_ = cw.stream(enc)
	}
	if cw.zw != nil {
		_ = cw.zw.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
