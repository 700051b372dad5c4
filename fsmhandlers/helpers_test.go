package fsmhandlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vitalvas/pathfsm/fsm"
	"github.com/vitalvas/pathfsm/fsmmux"
)

// newTestRouter returns a router matching "/test" -> 0 and "/other" -> 1.
func newTestRouter(t *testing.T) *fsmmux.Router {
	t.Helper()
	b := fsm.NewBuilder()
	b.Accept(b.Literal(fsm.Root, "/test"), 0)
	b.Accept(b.Literal(fsm.Root, "/other"), 1)

	table, err := fsm.Encode[int32](b, fsm.Exact)
	require.NoError(t, err)
	return fsmmux.NewRouter(fsm.NewMatcher(table))
}

func doRequest(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}
