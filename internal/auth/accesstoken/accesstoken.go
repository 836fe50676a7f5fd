// Package accesstoken describes the backend's access-token claims and mints
// tokens of the same shape for local use.
package accesstoken

import (
	"time"

	"conversa/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the claims of the backend's access tokens.
type Claims struct {
	Email        string       `json:"email"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

type UserMetadata struct {
	FullName string `json:"full_name,omitempty"`
	Name     string `json:"name,omitempty"`
}

// DisplayName prefers full_name over name.
func (c *Claims) DisplayName() string {
	if c.UserMetadata.FullName != "" {
		return c.UserMetadata.FullName
	}
	return c.UserMetadata.Name
}

// Mint signs an HS256 access token for user, valid for ttl from now.
func Mint(secret string, user models.Identity, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Email:        user.Email,
		Role:         "authenticated",
		UserMetadata: UserMetadata{FullName: user.DisplayName},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse verifies token with secret. The clock defaults to time.Now.
func Parse(token, secret string, now func() time.Time) (*Claims, error) {
	if now == nil {
		now = time.Now
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(now))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// ParseUnverified reads the claims without checking the signature.
func ParseUnverified(token string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
