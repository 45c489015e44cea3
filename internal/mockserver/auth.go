package mockserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/session"
)

var ErrTokenRevoked = errors.New("token revoked")

// tokenClaims adds the account's token version to the claims the console
// reads.
type tokenClaims struct {
	session.Claims
	Version int `json:"token_version"`
}

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	store  *Store
}

func NewIssuer(secret string, ttl time.Duration, store *Store, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.Real()
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clk, store: store}
}

func (i *Issuer) Issue(u model.User, version int) (string, error) {
	now := i.clock.Now()
	claims := tokenClaims{
		Claims: session.Claims{
			UserID:   u.ID,
			Username: u.Username,
			Role:     string(u.Role),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   u.Username,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			},
		},
		Version: version,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the signature, expiry and token version.
func (i *Issuer) Verify(token string) (*session.Claims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}
	current, ok := i.store.TokenVersion(claims.Name())
	if !ok || current != claims.Version {
		return nil, ErrTokenRevoked
	}
	return &claims.Claims, nil
}
