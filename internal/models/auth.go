package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the stable user identity issued by the external
// identity provider. The service only validates tokens; it never
// issues credentials.
type JWTClaims struct {
	UserID    string `json:"uid"`
	CollegeID string `json:"college_id,omitempty"`
	ClassID   string `json:"class_id,omitempty"`
	jwt.RegisteredClaims
}
