package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerMiddleware() {
	if s == nil || s.router == nil {
		return
	}
	s.router.Use(gin.Logger(), gin.Recovery(), corsMiddleware(originPolicyFromEnv()))
}

// originPolicy decides which Origin values get CORS headers. The zero
// value allows nothing, which disables CORS handling entirely.
type originPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func originPolicyFromEnv() originPolicy {
	return parseOriginPolicy(os.Getenv("AGENT_EVO_CORS_ORIGINS"))
}

func parseOriginPolicy(raw string) originPolicy {
	var p originPolicy
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSpace(part)
		switch origin {
		case "":
		case "*":
			return originPolicy{allowAll: true}
		default:
			if p.origins == nil {
				p.origins = make(map[string]struct{})
			}
			p.origins[origin] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) enabled() bool {
	return p.allowAll || len(p.origins) > 0
}

func (p originPolicy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func corsMiddleware(policy originPolicy) gin.HandlerFunc {
	if !policy.enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin == "" {
			c.Next()
			return
		}

		if policy.allows(origin) {
			if policy.allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// apiKeyAuthMiddleware rejects requests whose X-API-Key header does not
// match expected. CORS preflight requests pass through unauthenticated.
func apiKeyAuthMiddleware(expected string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(expected))
	if len(key) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		provided := []byte(strings.TrimSpace(c.GetHeader("X-API-Key")))
		if subtle.ConstantTimeCompare(provided, key) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
