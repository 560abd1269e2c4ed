package service

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/pkg/config"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
)

// AuthService validates bearer tokens minted by the external identity
// provider. It never issues credentials; its only job is binding a
// stable user id to a request.
type AuthService struct {
	cfg config.JWTConfig
}

// NewAuthService constructs the validator.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if s.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.cfg.Issuer))
	}
	if len(s.cfg.Audience) > 0 {
		options = append(options, jwt.WithAudience(s.cfg.Audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, options...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotAuthenticated.Code, appErrors.ErrNotAuthenticated.Status, "invalid token")
	}
	if !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrNotAuthenticated, "invalid token")
	}
	if claims.UserID == "" {
		// Fall back to the registered subject claim.
		if claims.Subject == "" {
			return nil, appErrors.Clone(appErrors.ErrNotAuthenticated, "token carries no user id")
		}
		claims.UserID = claims.Subject
	}
	return claims, nil
}
