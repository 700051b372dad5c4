package fsmhandlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalvas/pathfsm/fsmmux"
)

func mustCompression(t *testing.T, cfg CompressionConfig) fsmmux.MiddlewareFunc {
	t.Helper()
	mw, err := CompressionMiddleware(cfg)
	require.NoError(t, err)
	return mw
}

func decode(t *testing.T, encoding string, body []byte) string {
	t.Helper()
	var r io.ReadCloser
	switch encoding {
	case EncodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		require.NoError(t, err)
		r = zr
	case EncodingDeflate:
		r = flate.NewReader(bytes.NewReader(body))
	case EncodingBrotli:
		r = io.NopCloser(brotli.NewReader(bytes.NewReader(body)))
	default:
		return string(body)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func serveBody(contentType, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = io.WriteString(w, body)
	})
}

func TestNegotiateEncoding(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		offers []string
		want   string
	}{
		{"empty header", "", []string{"gzip", "deflate"}, ""},
		{"single", "gzip", []string{"gzip", "deflate"}, "gzip"},
		{"offer order breaks ties", "deflate, gzip", []string{"gzip", "deflate"}, "gzip"},
		{"quality wins", "gzip;q=0.5, deflate", []string{"gzip", "deflate"}, "deflate"},
		{"zero quality refuses", "gzip;q=0", []string{"gzip"}, ""},
		{"wildcard", "*", []string{"deflate", "gzip"}, "deflate"},
		{"explicit beats wildcard", "*;q=0.1, gzip;q=0.2", []string{"deflate", "gzip"}, "gzip"},
		{"wildcard refused", "*;q=0", []string{"gzip"}, ""},
		{"case and spaces", " GZIP ; q=0.8 ", []string{"gzip"}, "gzip"},
		{"malformed quality", "gzip;q=abc", []string{"gzip"}, ""},
		{"not offered", "br", []string{"gzip", "deflate"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NegotiateEncoding(tt.accept, tt.offers...))
		})
	}
}

func TestAcceptedEncodings(t *testing.T) {
	assert.Equal(t, []string{"deflate", "gzip"},
		AcceptedEncodings("gzip;q=0.4, deflate;q=0.9", EncodingGzip, EncodingDeflate))
	assert.Empty(t, AcceptedEncodings("identity", EncodingGzip, EncodingDeflate))
}

func TestCompressionMiddleware(t *testing.T) {
	large := strings.Repeat("state machine ", 200)

	tests := []struct {
		name         string
		config       CompressionConfig
		accept       string
		contentType  string
		body         string
		wantEncoding string
	}{
		{"gzip", CompressionConfig{}, "gzip", "text/plain", large, EncodingGzip},
		{"deflate", CompressionConfig{}, "deflate", "text/plain", large, EncodingDeflate},
		{"brotli", CompressionConfig{}, "br", "text/plain", large, EncodingBrotli},
		{"brotli best speed", CompressionConfig{Level: -2}, "br", "text/plain", large, EncodingBrotli},
		{"not accepted", CompressionConfig{}, "", "text/plain", large, ""},
		{"below min length", CompressionConfig{MinLength: 1024}, "gzip", "text/plain", "short", ""},
		{"image skipped", CompressionConfig{}, "gzip", "image/png", large, ""},
		{"detected type", CompressionConfig{}, "gzip", "", large, EncodingGzip},
		{"smallest", CompressionConfig{Smallest: true}, "gzip, deflate", "text/plain", large, EncodingDeflate},
		{"smallest only offer", CompressionConfig{Smallest: true, Encodings: []string{EncodingGzip}}, "gzip, deflate", "text/plain", large, EncodingGzip},
		{"smallest refused coding", CompressionConfig{Smallest: true}, "gzip, deflate, br;q=0", "text/plain", large, EncodingDeflate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustCompression(t, tt.config)(serveBody(tt.contentType, tt.body))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantEncoding, w.Header().Get("Content-Encoding"))
			assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")
			assert.Equal(t, tt.body, decode(t, tt.wantEncoding, w.Body.Bytes()))
			if tt.wantEncoding != "" {
				assert.Less(t, w.Body.Len(), len(tt.body))
			}
		})
	}
}

func TestCompressionMiddlewareSmallestKeepsIncompressible(t *testing.T) {
	noise := make([]byte, 4096)
	_, err := rand.Read(noise)
	require.NoError(t, err)

	h := mustCompression(t, CompressionConfig{Smallest: true})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(noise)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, strconv.Itoa(len(noise)), w.Header().Get("Content-Length"))
	assert.Equal(t, noise, w.Body.Bytes())
}

func TestCompressionMiddlewareSmallestStreamsPastBuffer(t *testing.T) {
	large := strings.Repeat("abcdefgh", 64)
	h := mustCompression(t, CompressionConfig{Smallest: true, MaxBuffer: 100})(serveBody("text/plain", large))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "deflate, gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, EncodingGzip, w.Header().Get("Content-Encoding"))
	assert.Empty(t, w.Header().Get("Content-Length"))
	assert.Equal(t, large, decode(t, EncodingGzip, w.Body.Bytes()))
}

func TestCompressionMiddlewarePassThrough(t *testing.T) {
	large := strings.Repeat("x", 2048)

	t.Run("already encoded", func(t *testing.T) {
		h := mustCompression(t, CompressionConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "br")
			_, _ = io.WriteString(w, large)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
		assert.Equal(t, large, w.Body.String())
	})

	t.Run("head", func(t *testing.T) {
		h := mustCompression(t, CompressionConfig{})(serveBody("text/plain", large))
		req := httptest.NewRequest(http.MethodHead, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
	})

	t.Run("no content", func(t *testing.T) {
		h := mustCompression(t, CompressionConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Zero(t, w.Body.Len())
	})

	t.Run("status kept", func(t *testing.T) {
		h := mustCompression(t, CompressionConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, large)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, large, decode(t, EncodingGzip, w.Body.Bytes()))
	})
}

func TestCompressionMiddlewareFlush(t *testing.T) {
	h := mustCompression(t, CompressionConfig{MinLength: 1 << 10})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "first ")
		require.NoError(t, http.NewResponseController(w).Flush())
		_, _ = io.WriteString(w, "second")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.True(t, w.Flushed)
	assert.Equal(t, EncodingGzip, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "first second", decode(t, EncodingGzip, w.Body.Bytes()))
}

func TestCompressionMiddlewareAroundRouter(t *testing.T) {
	large := strings.Repeat("route ", 300)
	r := newTestRouter(t)
	r.HandleFunc(0, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, large)
	})
	h := fsmmux.Chain(r, mustCompression(t, CompressionConfig{MinLength: 256}))

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, EncodingGzip, w.Header().Get("Content-Encoding"))
		assert.Equal(t, large, decode(t, EncodingGzip, w.Body.Bytes()))
	}
}

func TestCompressionMiddlewareInvalidConfig(t *testing.T) {
	_, err := CompressionMiddleware(CompressionConfig{Level: 12})
	assert.ErrorIs(t, err, ErrInvalidCompressionLevel)

	_, err = CompressionMiddleware(CompressionConfig{Level: -3})
	assert.ErrorIs(t, err, ErrInvalidCompressionLevel)

	_, err = CompressionMiddleware(CompressionConfig{Encodings: []string{"zstd"}})
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestBrotliQuality(t *testing.T) {
	assert.Equal(t, 4, brotliQuality(flate.DefaultCompression))
	assert.Equal(t, brotli.BestSpeed, brotliQuality(flate.HuffmanOnly))
	assert.Equal(t, 9, brotliQuality(flate.BestCompression))
}

func TestIsPrecompressed(t *testing.T) {
	assert.True(t, isPrecompressed("image/png"))
	assert.True(t, isPrecompressed(" Application/GZIP"))
	assert.False(t, isPrecompressed("text/html; charset=utf-8"))
	assert.False(t, isPrecompressed("image"))
}
