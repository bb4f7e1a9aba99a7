package oauth2client

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of an access or refresh token.
type Claims struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles,omitempty"`
	} `json:"realm_access,omitempty"`
}

// DecodeClaims decodes token without verifying its signature. It reports false for
// anything that is not a well-formed JWT.
func DecodeClaims(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// Expiry returns the exp claim, if present.
func (c *Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// HasRole reports whether role is listed in realm_access.roles.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.RealmAccess.Roles, role)
}
