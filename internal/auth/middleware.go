package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
)

const (
	identityContextKey = "auth_identity"
	tokenContextKey    = "auth_token"
)

// Middleware resolves the bearer token, when one is present, into an
// identity and stores both in the context. Requests without a token
// pass through as guests; a token the platform rejects is a hard 401.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}
		identity, err := s.Resolve(c.Request.Context(), token)
		if err != nil {
			s.Forget(token)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityContextKey, identity)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// RequireIdentity rejects guest requests. Mount after Middleware.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity, _ := IdentityFromContext(c); !identity.Known() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Next()
	}
}

// IdentityFromContext retrieves the resolved identity, if any.
func IdentityFromContext(c *gin.Context) (*models.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	identity, ok := val.(*models.Identity)
	return identity, ok
}

// TokenFromContext retrieves the bearer token captured by the middleware.
func TokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(tokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie("aqb_token"); err == nil && token != "" {
		return token
	}
	return ""
}
