package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"estatecollab/internal/pkg/jwt"
	"estatecollab/internal/pkg/response"
)

// TokenValidator is satisfied by *jwt.Service.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuth requires "Authorization: Bearer <token>" and stores user_id and role on the context.
func JWTAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}
