package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func applyStack(t *testing.T, final http.Handler) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stack := MiddlewareStack(MiddlewareConfig{Logger: logger})
	handler := final
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}
	return handler
}

func TestActorHeadersReachContext(t *testing.T) {
	var got *shared.Actor
	handler := applyStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-ID", "42")
	req.Header.Set("X-Actor-Name", "Dana")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, int64(42), got.ID)
	require.Equal(t, "Dana", got.Name)
}

func TestMalformedActorHeaderYieldsAnonymous(t *testing.T) {
	var got int64
	handler := applyStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, raw := range []string{"", "abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Actor-ID", raw)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Zero(t, got, "header %q must not produce an actor", raw)
	}
}
