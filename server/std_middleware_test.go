package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dovidio/colino-backend/server"
	"github.com/stretchr/testify/require"
)

func TestChainMiddleware(t *testing.T) {
	var order []string
	mw := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	handler := server.ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}, mw("first"), mw("second"))

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestCorsMiddleware(t *testing.T) {
	withOrigin := func(f *testFixture, method, target, origin string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, target, nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		f.srv.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed origin gets credentialed headers", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := withOrigin(f, http.MethodGet, server.RouteAuthInitiate, testOrigin)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight is answered with the grant set", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := withOrigin(f, http.MethodOptions, server.RouteAuthInitiate, testOrigin)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Headers"))
		require.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("preflight works on the poll and refresh routes", func(t *testing.T) {
		f := setupTestFixture(t)

		poll := withOrigin(f, http.MethodOptions, "/auth/poll/some-session", testOrigin)
		refresh := withOrigin(f, http.MethodOptions, "/auth/refresh", testOrigin)

		require.Equal(t, http.StatusOK, poll.Code)
		require.Equal(t, testOrigin, poll.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, http.StatusOK, refresh.Code)
		require.Equal(t, testOrigin, refresh.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disallowed origin gets no cors headers", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := withOrigin(f, http.MethodGet, server.RouteAuthInitiate, "http://evil.example")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("wildcard allows every origin without credentials", func(t *testing.T) {
		f := setupTestFixtureWithOrigins(t, "*")

		rec := withOrigin(f, http.MethodGet, server.RouteAuthInitiate, "http://anywhere.example")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("no origin header passes through untouched", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := withOrigin(f, http.MethodGet, server.RouteAuthInitiate, "")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("callback route is outside the cors surface", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := withOrigin(f, http.MethodGet, server.RouteCallback, testOrigin)

		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	})
}
