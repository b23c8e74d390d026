package server_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dovidio/colino-backend/provider"
	"github.com/dovidio/colino-backend/server"
	"github.com/dovidio/colino-backend/sessions"
	"github.com/stretchr/testify/require"
)

func TestInitiateHandler(t *testing.T) {
	t.Run("stores a pending session and returns the consent URL", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := f.do(http.MethodGet, server.RouteAuthInitiate, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

		body := decodeBody(t, rec)
		sessionID, _ := body["session_id"].(string)
		require.NotEmpty(t, sessionID)

		session, err := f.repo.Get(context.Background(), sessionID)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusPending, session.Status)

		authURL, _ := body["authorization_url"].(string)
		require.Contains(t, authURL, "state="+session.State)
	})

	t.Run("distinct flows get distinct sessions", func(t *testing.T) {
		f := setupTestFixture(t)

		first := decodeBody(t, f.do(http.MethodGet, server.RouteAuthInitiate, nil))
		second := decodeBody(t, f.do(http.MethodGet, server.RouteAuthInitiate, nil))

		require.NotEqual(t, first["session_id"], second["session_id"])
		require.NotEqual(t, first["authorization_url"], second["authorization_url"])
	})

	t.Run("store failure surfaces as 500", func(t *testing.T) {
		f := setupTestFixture(t)
		f.repo.CreateErr = errors.New("store down")

		rec := f.do(http.MethodGet, server.RouteAuthInitiate, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "Failed to store session", decodeBody(t, rec)["error"])
	})
}

func TestPollHandler(t *testing.T) {
	t.Run("unknown session is 404", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := f.do(http.MethodGet, "/auth/poll/does-not-exist", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "Session not found or expired", decodeBody(t, rec)["error"])
	})

	t.Run("expired session reads as not found", func(t *testing.T) {
		f := setupTestFixture(t)
		session := f.seedExpired(t)

		rec := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("pending session is 202 with the wait message", func(t *testing.T) {
		f := setupTestFixture(t)
		session := f.seedPending(t)

		rec := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)

		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "pending", body["status"])
		require.Equal(t, "Authentication in progress. Please complete the OAuth flow in your browser.", body["message"])
	})

	t.Run("completed session returns the token bundle", func(t *testing.T) {
		f := setupTestFixture(t)
		session := f.seedCompleted(t)

		rec := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		body := decodeBody(t, rec)
		require.Equal(t, "completed", body["status"])
		require.Equal(t, testAccessToken, body["access_token"])
		require.Equal(t, testRefreshToken, body["refresh_token"])
		require.Equal(t, "Bearer", body["token_type"])
		require.Equal(t, float64(3599), body["expires_in"])
		require.Equal(t, float64(session.Tokens.ExpiresAt), body["expires_at"])
		require.Equal(t, testScope, body["scope"])
	})

	t.Run("completed session stays retrievable across polls", func(t *testing.T) {
		f := setupTestFixture(t)
		session := f.seedCompleted(t)

		first := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)
		second := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)

		require.Equal(t, http.StatusOK, first.Code)
		require.Equal(t, http.StatusOK, second.Code)
		require.Equal(t, testAccessToken, decodeBody(t, second)["access_token"])
	})

	t.Run("failed session is 200 with the stored message", func(t *testing.T) {
		f := setupTestFixture(t)
		session := f.seedFailed(t, "OAuth error: access_denied")

		rec := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "failed", body["status"])
		require.Equal(t, "OAuth error: access_denied", body["error_message"])
	})
}

func TestRefreshHandler(t *testing.T) {
	t.Run("missing body is rejected before any provider call", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Missing request body", decodeBody(t, rec)["error"])
		require.Empty(t, f.oauth.refreshCalls)
	})

	t.Run("invalid JSON is rejected", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, strings.NewReader("{not json"))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Invalid JSON in request body", decodeBody(t, rec)["error"])
		require.Empty(t, f.oauth.refreshCalls)
	})

	t.Run("blank refresh token is rejected", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(`{"refresh_token": "   "}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Missing refresh_token in request body", decodeBody(t, rec)["error"])
		require.Empty(t, f.oauth.refreshCalls)
	})

	t.Run("success without rotation omits the refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		bundle := testTokens()
		bundle.RefreshToken = ""
		f.oauth.RefreshBundle = bundle

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(`{"refresh_token": "`+testRefreshToken+`"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{testRefreshToken}, f.oauth.refreshCalls)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		body := decodeBody(t, rec)
		require.Equal(t, "Token refreshed successfully", body["message"])
		require.Equal(t, testAccessToken, body["access_token"])
		require.Equal(t, float64(3599), body["expires_in"])
		require.NotContains(t, body, "refresh_token")
	})

	t.Run("rotated refresh token is passed through", func(t *testing.T) {
		f := setupTestFixture(t)
		bundle := testTokens()
		bundle.RefreshToken = "1//rotated-refresh-token"
		f.oauth.RefreshBundle = bundle

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(`{"refresh_token": "`+testRefreshToken+`"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1//rotated-refresh-token", decodeBody(t, rec)["refresh_token"])
	})

	t.Run("provider rejection is 400 with the provider message", func(t *testing.T) {
		f := setupTestFixture(t)
		f.oauth.RefreshErr = &provider.Error{
			Code:        "invalid_grant",
			Description: "Token has been expired or revoked.",
			StatusCode:  http.StatusBadRequest,
		}

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(`{"refresh_token": "`+testRefreshToken+`"}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Token has been expired or revoked.", decodeBody(t, rec)["error"])
	})

	t.Run("transport failure is 502", func(t *testing.T) {
		f := setupTestFixture(t)
		f.oauth.RefreshErr = errors.New("connection refused")

		rec := f.do(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(`{"refresh_token": "`+testRefreshToken+`"}`))

		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Equal(t, "Failed to reach authorization provider", decodeBody(t, rec)["error"])
	})
}

func TestRecoverMiddleware(t *testing.T) {
	t.Run("panicking handler becomes a 500", func(t *testing.T) {
		f := setupTestFixture(t)

		// A completed session with no bundle is a store invariant
		// violation; rendering it panics.
		session, err := sessions.New(10 * time.Minute)
		require.NoError(t, err)
		session.Status = sessions.StatusCompleted
		f.repo.Seed(session)

		rec := f.do(http.MethodGet, "/auth/poll/"+session.ID, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
	})
}
