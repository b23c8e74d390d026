package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HealthzHandler reports liveness, including session store reachability.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Ping(r.Context()); err != nil {
			log.Err(err).Msg("[HealthzHandler] session store unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
