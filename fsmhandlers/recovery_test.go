package fsmhandlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitalvas/pathfsm/fsm"
)

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		handler       http.HandlerFunc
		withLogFunc   bool
		wantCode      int
		wantLogCalled bool
	}{
		{
			name: "no panic passes through",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			withLogFunc: true,
			wantCode:    http.StatusAccepted,
		},
		{
			name: "panic returns 500",
			handler: func(_ http.ResponseWriter, _ *http.Request) {
				panic("something went wrong")
			},
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "panic with LogFunc calls logger",
			handler: func(_ http.ResponseWriter, _ *http.Request) {
				panic(42)
			},
			withLogFunc:   true,
			wantCode:      http.StatusInternalServerError,
			wantLogCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logCalled bool
			cfg := RecoveryConfig{}
			if tt.withLogFunc {
				cfg.LogFunc = func(_ *http.Request, _ any) { logCalled = true }
			}

			r := newTestRouter(t)
			r.Handle(0, tt.handler)
			r.Use(RecoveryMiddleware(cfg))

			w := doRequest(r, "/test")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantLogCalled, logCalled)
		})
	}
}

func TestRecoveryMiddlewareLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := newTestRouter(t)
	r.HandleFunc(0, func(http.ResponseWriter, *http.Request) {
		panic(&fsm.TableError{Offset: 3, Reason: "read past end of table"})
	})
	r.Use(RecoveryMiddleware(RecoveryConfig{Logger: logger}))

	w := doRequest(r, "/test")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"msg":"panic recovered"`)
	assert.Contains(t, buf.String(), "malformed transition table at cell 3")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestRecoveryMiddlewareAbortHandler(t *testing.T) {
	r := newTestRouter(t)
	r.HandleFunc(0, func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})
	r.Use(RecoveryMiddleware(RecoveryConfig{}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		doRequest(r, "/test")
	})
}

func TestRecoveryMiddlewareAroundRouter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := newTestRouter(t)
	r.HandleFunc(1, func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}).Name("other")
	h := RecoveryMiddleware(RecoveryConfig{Logger: logger})(r)

	w := doRequest(h, "/other?token=x")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"path":"/other","request_id":"","handler_index":1,"route":"other"`)
	assert.NotContains(t, buf.String(), "token")
}
