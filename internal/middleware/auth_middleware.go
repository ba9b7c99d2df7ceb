package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/service"
)

const ClientContextKey = "client"

// Auth requires a paired client's bearer token when pairing is enabled.
// EventSource cannot set headers, so access_token is also read from the
// query string.
func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authService.Enabled() {
			c.Next()
			return
		}

		token, apiErr := bearerToken(c)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		client, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(ClientContextKey, client)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, *apperrors.APIError) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, nil
		}
		return "", apperrors.Unauthorized("missing authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.Unauthorized("invalid authorization format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	return token, nil
}

// Client returns the paired client name, or "" when auth is disabled.
func Client(c *gin.Context) string {
	value, ok := c.Get(ClientContextKey)
	if !ok {
		return ""
	}
	client, ok := value.(string)
	if !ok {
		return ""
	}
	return client
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"success": false,
		"error":   apiErr.Message,
		"code":    apiErr.Code,
	})
}
