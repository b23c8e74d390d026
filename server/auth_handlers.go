package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dovidio/colino-backend/provider"
	"github.com/dovidio/colino-backend/sessions"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

const pendingPollMessage = "Authentication in progress. Please complete the OAuth flow in your browser."

// InitiateHandler starts a new authorization flow. It stores a pending
// session and hands back the Google consent URL together with the
// session ID the CLI will poll.
func (s *Server) InitiateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := sessions.New(s.config.SessionTTL)
		if err != nil {
			log.Err(err).Msg("[InitiateHandler] failed to create session")
			writeJSONError(w, "Failed to create session", http.StatusInternalServerError)
			return
		}

		if err := s.sessions.Create(r.Context(), session); err != nil {
			log.Err(err).Str("session_id", session.ID).Msg("[InitiateHandler] failed to store session")
			writeJSONError(w, "Failed to store session", http.StatusInternalServerError)
			return
		}

		flowsInitiatedTotal.Inc()
		log.Info().Str("session_id", session.ID).Msg("authorization flow initiated")

		writeJSON(w, http.StatusOK, map[string]string{
			"authorization_url": s.oauth.AuthCodeURL(session.State),
			"session_id":        session.ID,
		})
	}
}

// PollHandler reports the state of an authorization flow. The CLI polls
// this until the browser half of the flow has landed on the callback,
// then collects the stored token bundle.
func (s *Server) PollHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("session_id")
		if sessionID == "" {
			writeJSONError(w, "Missing session_id parameter", http.StatusBadRequest)
			return
		}

		session, err := s.sessions.Get(r.Context(), sessionID)
		if errors.Is(err, sessions.ErrNotFound) {
			pollsTotal.WithLabelValues("not_found").Inc()
			writeJSONError(w, "Session not found or expired", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Err(err).Str("session_id", sessionID).Msg("[PollHandler] session lookup failed")
			writeJSONError(w, "Failed to read session", http.StatusInternalServerError)
			return
		}

		pollsTotal.WithLabelValues(string(session.Status)).Inc()

		switch session.Status {
		case sessions.StatusCompleted:
			resp := tokenResponse(session.Tokens)
			resp["status"] = string(sessions.StatusCompleted)
			writeTokenJSON(w, http.StatusOK, resp)
		case sessions.StatusFailed:
			writeJSON(w, http.StatusOK, map[string]string{
				"status":        string(sessions.StatusFailed),
				"error_message": session.ErrorMessage,
			})
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  string(sessions.StatusPending),
				"message": pendingPollMessage,
			})
		}
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshHandler redeems a refresh token for a fresh access token. The
// flow session is long gone by the time this is called; the refresh
// token in the body is the only input.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.ContentLength == 0 {
			writeJSONError(w, "Missing request body", http.StatusBadRequest)
			return
		}

		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "Invalid JSON in request body", http.StatusBadRequest)
			return
		}

		if strings.TrimSpace(req.RefreshToken) == "" {
			writeJSONError(w, "Missing refresh_token in request body", http.StatusBadRequest)
			return
		}

		bundle, err := s.oauth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			var provErr *provider.Error
			if errors.As(err, &provErr) {
				log.Warn().Str("code", provErr.Code).Msg("[RefreshHandler] provider rejected refresh token")
				refreshesTotal.WithLabelValues("rejected").Inc()
				writeJSONError(w, provErr.Message(), http.StatusBadRequest)
				return
			}
			log.Err(err).Msg("[RefreshHandler] token refresh request failed")
			refreshesTotal.WithLabelValues("error").Inc()
			writeJSONError(w, "Failed to reach authorization provider", http.StatusBadGateway)
			return
		}

		refreshesTotal.WithLabelValues("ok").Inc()

		resp := tokenResponse(bundle)
		resp["message"] = "Token refreshed successfully"
		writeTokenJSON(w, http.StatusOK, resp)
	}
}

// PreflightHandler backs the explicit OPTIONS registrations. Preflights
// carry an Origin header and are answered by CorsMiddleware before the
// chain reaches this point.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// tokenResponse flattens a bundle into the wire shape shared by the
// poll and refresh responses. Empty optional fields are dropped rather
// than sent as blanks.
func tokenResponse(tokens *sessions.TokenBundle) map[string]any {
	resp := map[string]any{
		"access_token": tokens.AccessToken,
		"token_type":   tokens.TokenType,
		"expires_in":   tokens.ExpiresIn,
		"expires_at":   tokens.ExpiresAt,
	}
	if tokens.RefreshToken != "" {
		resp["refresh_token"] = tokens.RefreshToken
	}
	if tokens.Scope != "" {
		resp["scope"] = tokens.Scope
	}
	return resp
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeTokenJSON writes a token-bearing response with caching disabled.
func writeTokenJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, statusCode, body)
}

// writeJSONError writes the API error shape
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
