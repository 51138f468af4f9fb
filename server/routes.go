package server

func (s *Server) initRoutes() {
	// Desktop: primary credential, owner only
	s.RegisterRouteHandler("POST "+RouteSessions, ChainMiddleware(s.CreateSessionHandler(), s.OwnerMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionStatus, ChainMiddleware(s.SessionStatusHandler(), s.OwnerMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteSession, ChainMiddleware(s.CancelSessionHandler(), s.OwnerMiddleware()...))

	// Phone: session id + session token only
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.DescribeSessionHandler(), s.MobileMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionStep, ChainMiddleware(s.UploadStepHandler(), s.MobileMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionDone, ChainMiddleware(s.CompleteSessionHandler(), s.MobileMiddleware()...))

	// Preflight for every API route
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.preflightHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	if s.services.Metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.services.Metrics)
	}
}
