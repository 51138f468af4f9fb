package server

// Route path constants
const (
	// Desktop (primary credential) and phone (session credential) share the session resource
	RouteSessions      = "/api/verification/sessions"
	RouteSession       = RouteSessions + "/{id}"
	RouteSessionStep   = RouteSession + "/steps/{step}"
	RouteSessionDone   = RouteSession + "/complete"
	RouteSessionStatus = RouteSession + "/status"

	// Operational
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

const (
	headerSessionToken = "X-Session-Token"
	headerRequestID    = "X-Request-ID"
	queryToken         = "token"
	formFileField      = "file"
	contentTypeJSON    = "application/json"
)
