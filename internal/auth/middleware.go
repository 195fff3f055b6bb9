package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyToken is the key for storing the validated token in gin context
	ContextKeyToken = "authToken"
	// ContextKeyUsername is the key for storing the authenticated username
	ContextKeyUsername = "authUsername"
)

// Middleware extracts and validates the bearer token from the request
// Sets authToken and authUsername in context if valid
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get token from header
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("X-API-Key")
		}

		if raw != "" {
			token, err := m.ValidateToken(c.Request.Context(), raw)
			if err == nil {
				c.Set(ContextKeyToken, token)
				c.Set(ContextKeyUsername, token.Username)
			}
		}

		c.Next()
	}
}

// RequireAuth middleware rejects requests without valid auth
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyToken); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Bearer token required. Include 'Authorization: Bearer sk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// GetToken returns the validated token from context (if authenticated)
func GetToken(c *gin.Context) (*Token, bool) {
	token, exists := c.Get(ContextKeyToken)
	if !exists {
		return nil, false
	}
	return token.(*Token), true
}

// CurrentUsername returns the authenticated username
func CurrentUsername(c *gin.Context) string {
	username, exists := c.Get(ContextKeyUsername)
	if !exists {
		return ""
	}
	return username.(string)
}

// IsAuthenticated checks if the request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyToken)
	return exists
}
