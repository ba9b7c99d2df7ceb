package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS allows the listed origins. An entry ending in "*" matches by prefix,
// so "chrome-extension://*" admits any installed extension id.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	var prefixes []string
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "*" && strings.HasSuffix(origin, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(origin, "*"))
			continue
		}
		allowed[origin] = struct{}{}
	}

	matches := func(origin string) bool {
		if _, ok := allowed[origin]; ok {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed["*"]; ok {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if matches(origin) {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization,Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
