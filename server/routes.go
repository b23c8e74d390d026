package server

func (s *Server) initRoutes() {
	// Auth flow API, consumed cross-origin by the Colino CLI companion app
	s.RegisterRouteHandler("GET "+RouteAuthInitiate, ChainMiddleware(s.InitiateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthPoll, ChainMiddleware(s.PollHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))

	// Method-specific patterns never match OPTIONS, so CORS preflights
	// need their own registrations.
	s.RegisterRouteHandler("OPTIONS "+RouteAuthInitiate, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAuthPoll, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAuthRefresh, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// Provider-facing callback; the browser lands here, no CORS
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}
