package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS returns a middleware that sets CORS headers for cross-origin requests.
// AllowedOrigins can be "*" or a comma-separated list (e.g. "http://localhost:3000,http://localhost:5173").
func CORS(allowedOrigins string) gin.HandlerFunc {
	allowed := OriginAllowed(allowedOrigins)
	wildcard := allowed("*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if wildcard {
			allowOrigin = "*"
		} else if origin != "" && allowed(origin) {
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed returns a predicate over request origins for the same list CORS accepts.
// An empty list or "*" allows everything. Also used for the WebSocket origin check.
func OriginAllowed(allowedOrigins string) func(origin string) bool {
	origins := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(allowedOrigins), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	if len(origins) == 0 || origins["*"] {
		return func(string) bool { return true }
	}
	return func(origin string) bool { return origins[origin] }
}
