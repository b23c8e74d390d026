package server

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/dovidio/colino-backend/provider"
	"github.com/dovidio/colino-backend/sessions"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

// ParseTemplate parses a page template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(templateFiles, "templates/"+name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

// callbackPageData feeds the confirmation and failure page templates.
type callbackPageData struct {
	AppName      string
	ErrorMessage string
}

// OAuthCallbackHandler lands the browser half of the flow. Google
// redirects here with either an authorization code or an error, the
// outcome is written into the session the CLI is polling, and the user
// gets a page telling them to go back to their terminal.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	successTmpl, err := ParseTemplate("callback_success.html")
	if err != nil {
		panic("Failed to parse callback success template: " + err.Error())
	}
	failureTmpl, err := ParseTemplate("callback_failure.html")
	if err != nil {
		panic("Failed to parse callback failure template: " + err.Error())
	}

	renderSuccess := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", contentTypeHTML)
		data := callbackPageData{AppName: s.config.AppName}
		if err := successTmpl.Execute(w, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	}

	renderFailure := func(w http.ResponseWriter, message string) {
		w.Header().Set("Content-Type", contentTypeHTML)
		data := callbackPageData{AppName: s.config.AppName, ErrorMessage: message}
		if err := failureTmpl.Execute(w, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")

		// Consent denials and provider errors arrive as query params
		// instead of a code.
		if oauthError := r.URL.Query().Get("error"); oauthError != "" {
			message := "OAuth error: " + oauthError
			if description := r.URL.Query().Get("error_description"); description != "" {
				message += " - " + description
			}

			if state == "" {
				writeJSONError(w, message, http.StatusBadRequest)
				return
			}
			session, err := s.sessions.GetByState(ctx, state)
			if errors.Is(err, sessions.ErrNotFound) {
				writeJSONError(w, message, http.StatusBadRequest)
				return
			}
			if err != nil {
				log.Err(err).Msg("[OAuthCallbackHandler] session lookup failed")
				writeJSONError(w, "Failed to read session", http.StatusInternalServerError)
				return
			}

			if markErr := s.sessions.MarkFailed(ctx, session.ID, message); markErr != nil &&
				!errors.Is(markErr, sessions.ErrNotPending) && !errors.Is(markErr, sessions.ErrNotFound) {
				log.Err(markErr).Str("session_id", session.ID).Msg("[OAuthCallbackHandler] failed to record provider error")
				writeJSONError(w, "Failed to save authentication data", http.StatusInternalServerError)
				return
			}

			callbacksTotal.WithLabelValues("denied").Inc()
			renderFailure(w, message)
			return
		}

		if code == "" || state == "" {
			writeJSONError(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		session, err := s.sessions.GetByState(ctx, state)
		if errors.Is(err, sessions.ErrNotFound) {
			writeJSONError(w, "Session not found or expired", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Err(err).Msg("[OAuthCallbackHandler] session lookup failed")
			writeJSONError(w, "Failed to read session", http.StatusInternalServerError)
			return
		}

		// Reloaded tabs and retried redirects replay the callback; a
		// terminal session re-renders its page without a second exchange.
		if session.Terminal() {
			if session.Status == sessions.StatusFailed {
				renderFailure(w, session.ErrorMessage)
				return
			}
			renderSuccess(w)
			return
		}

		bundle, err := s.oauth.Exchange(ctx, code)
		if err != nil {
			message := "Token exchange failed"
			var provErr *provider.Error
			if errors.As(err, &provErr) {
				message = provErr.Message()
			}
			log.Warn().Err(err).Str("session_id", session.ID).Msg("[OAuthCallbackHandler] code exchange failed")

			if markErr := s.sessions.MarkFailed(ctx, session.ID, message); markErr != nil &&
				!errors.Is(markErr, sessions.ErrNotPending) {
				log.Err(markErr).Str("session_id", session.ID).Msg("[OAuthCallbackHandler] failed to record exchange failure")
			}

			callbacksTotal.WithLabelValues("failed").Inc()
			renderFailure(w, message)
			return
		}

		err = s.sessions.MarkCompleted(ctx, session.ID, bundle)
		if err != nil && !errors.Is(err, sessions.ErrNotPending) {
			if errors.Is(err, sessions.ErrNotFound) {
				writeJSONError(w, "Session not found or expired", http.StatusNotFound)
				return
			}
			log.Err(err).Str("session_id", session.ID).Msg("[OAuthCallbackHandler] failed to save tokens")
			writeJSONError(w, "Failed to save authentication data", http.StatusInternalServerError)
			return
		}

		log.Info().Str("session_id", session.ID).Msg("authorization flow completed")
		callbacksTotal.WithLabelValues("completed").Inc()
		renderSuccess(w)
	}
}
