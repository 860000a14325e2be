// Package identity adapts the external session provider: it validates
// session tokens and yields the stable user id the sync core scopes writes
// to. Token issuance lives in the auth service, not here.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySubject = errors.New("token has no subject")
)

// Claims are the session-token claims this service cares about.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// Config contains authenticator configuration.
type Config struct {
	SecretKey string
	// Leeway tolerates small clock skew between the auth service and us.
	Leeway time.Duration
}

// Authenticator validates session tokens issued by the auth service.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

// NewAuthenticator creates a token authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &Authenticator{
		secret: []byte(cfg.SecretKey),
		leeway: leeway,
	}
}

// ValidateToken parses and verifies a bearer token, returning the user id it
// was issued for.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrEmptySubject
	}
	return userID, nil
}
