package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const derivedKeyLength = 32

// TokenClaims is what a verified session token asserts.
type TokenClaims struct {
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies session tokens.
// Implementations: PasetoService (v4.local) and JWTService (HS256).
type TokenService interface {
	// CreateToken returns a token for userID and its absolute expiry.
	CreateToken(userID uuid.UUID) (string, time.Time, error)
	// VerifyToken returns ErrInvalidToken or ErrExpiredToken on failure
	// and nothing else.
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

type tokenOptions struct {
	now func() time.Time
}

// TokenOption customises a token service.
type TokenOption func(*tokenOptions)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) {
		o.now = now
	}
}

func applyTokenOptions(opts []TokenOption) tokenOptions {
	o := tokenOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTokenService builds the service for the configured algorithm. The
// algorithm is fixed here and never taken from an incoming token.
func NewTokenService(algorithm string, secret []byte, lifetime time.Duration, opts ...TokenOption) (TokenService, error) {
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}

	switch algorithm {
	case config.TokenAlgorithmPaseto:
		key, err := deriveKey(secret, "brokenomore session v4.local")
		if err != nil {
			return nil, err
		}
		return NewPasetoService(key, lifetime, opts...)
	case config.TokenAlgorithmHS256:
		key, err := deriveKey(secret, "brokenomore session HS256")
		if err != nil {
			return nil, err
		}
		return NewJWTService(key, lifetime, opts...)
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q", algorithm)
	}
}

// deriveKey stretches the configured secret into a per-algorithm key so the
// same secret never serves two algorithms directly.
func deriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) < derivedKeyLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", derivedKeyLength, len(secret))
	}

	key := make([]byte, derivedKeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}
	return key, nil
}

// expired reports whether exp has been reached. A token is no longer valid
// at the instant of expiry.
func expired(now, exp time.Time) bool {
	return !now.Before(exp)
}
