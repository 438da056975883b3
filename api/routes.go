package api

import (
	"errors"
	"os"
	"strings"
)

func (s *Server) registerRoutes() error {
	if s == nil || s.router == nil {
		return nil
	}

	// Liveness probe stays outside the authenticated group.
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	apiKey := strings.TrimSpace(os.Getenv("AGENT_EVO_API_KEY"))
	if apiKey != "" {
		api.Use(apiKeyAuthMiddleware(apiKey))
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("AGENT_EVO_DISABLE_AUTH")), "true") {
		// Explicitly allow unauthenticated access.
	} else {
		return errors.New("api: missing auth configuration: set AGENT_EVO_API_KEY or set AGENT_EVO_DISABLE_AUTH=true")
	}

	api.GET("/health", s.handleHealth)

	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/report", s.handleGetRunReport)

	// Gate endpoint - release gate verdict from the most recent run
	api.GET("/gate", s.handleGate)

	api.GET("/cases", s.handleListCases)

	return nil
}
