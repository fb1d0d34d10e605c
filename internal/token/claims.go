// Package token encodes and decodes the signed, self-contained bearer tokens
// exchanged between the identity authority, the gateway and resource
// services.
package token

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the claim set carried by every token. sub holds the username.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64    `json:"userId"`
	Role     string   `json:"role"`
	Scope    []string `json:"scope"`
	Verified bool     `json:"verified"`
}

// HasScope reports whether s is one of the granted scopes.
func (c *Claims) HasScope(s string) bool {
	return slices.Contains(c.Scope, s)
}
