package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Flow Routes - polled by the Colino CLI
	RouteAuthInitiate = "/auth/initiate"
	RouteAuthPoll     = "/auth/poll/{session_id}"
	RouteAuthRefresh  = "/auth/refresh"

	// Provider Routes - Google redirects the user's browser here
	RouteCallback = "/callback"

	// Operational Routes
	RouteHealthz = "/healthz"
)
