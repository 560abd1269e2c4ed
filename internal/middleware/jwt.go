package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/internal/service"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromRequest(c, authService)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func claimsFromRequest(c *gin.Context, authService *service.AuthService) (*models.JWTClaims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		// EventSource cannot set headers, so the stream endpoint
		// accepts the token as a query parameter.
		if token := c.Query("access_token"); token != "" {
			return authService.ValidateToken(token)
		}
		return nil, appErrors.ErrNotAuthenticated
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, appErrors.Clone(appErrors.ErrNotAuthenticated, "invalid authorization header")
	}
	return authService.ValidateToken(parts[1])
}
