package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

var ErrNoIdentity = errors.New("token carries no username")

// Claims is the subset of the backend's JWT payload the console reads. The
// signature is never checked here; the backend remains the authority.
type Claims struct {
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes token without verifying it.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Name prefers the explicit username claim and falls back to sub.
func (c *Claims) Name() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// User builds the identity the token describes. Roles other than ADMIN are
// treated as PEER.
func (c *Claims) User() (*model.User, error) {
	name := c.Name()
	if name == "" {
		return nil, ErrNoIdentity
	}
	role := model.RolePeer
	if model.Role(c.Role) == model.RoleAdmin {
		role = model.RoleAdmin
	}
	return &model.User{ID: c.UserID, Username: name, Role: role}, nil
}

// Expired reports whether the exp claim lies before now. Tokens without exp
// never expire client-side.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}
