package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-verification-handoff/internal/config"
	"github.com/jrsteele09/go-verification-handoff/verification"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Services are the domain components the HTTP surface drives.
type Services struct {
	Verifier     PrimaryVerifier
	Manager      *verification.Manager
	Uploader     *verification.Uploader
	QR           *verification.QRCoder
	LiveSessions func() int
	Metrics      http.Handler
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services
	limiter  *remoteLimiter
}

func New(config config.Config, services Services) (*Server, error) {
	if services.Verifier == nil {
		return nil, errors.New("[Server New] primary verifier is required")
	}
	if services.Manager == nil || services.Uploader == nil || services.QR == nil {
		return nil, errors.New("[Server New] verification services are required")
	}
	if services.LiveSessions == nil {
		services.LiveSessions = func() int { return 0 }
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		services: services,
		limiter:  newRemoteLimiter(config.GetMobileRateLimit(), config.GetMobileRateBurst()),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
