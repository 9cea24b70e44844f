package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/logging"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/user"
)

// IdentityProvider is the OAuth side of the login flow. *Provider implements it.
type IdentityProvider interface {
	AuthorizationURL(ctx context.Context) (string, error)
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// UserDirectory resolves local users. *user.Directory implements it.
type UserDirectory interface {
	GetOrCreate(ctx context.Context, externalID, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Session is the result of a completed login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// AuthStatus is the outcome of checking a session token.
type AuthStatus int

const (
	Unauthenticated AuthStatus = iota
	Authenticated
	Forbidden
)

func (s AuthStatus) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

// AuthResult carries the user only when Status is Authenticated or Forbidden.
type AuthResult struct {
	Status AuthStatus
	User   *user.User
}

// Service handles authentication business logic
type Service struct {
	provider IdentityProvider
	users    UserDirectory
	tokens   TokenService
	metrics  MetricsRecorder
}

func NewService(provider IdentityProvider, users UserDirectory, tokens TokenService, metrics MetricsRecorder) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		provider: provider,
		users:    users,
		tokens:   tokens,
		metrics:  metrics,
	}
}

// LoginURL returns where to send the browser to start a login.
func (s *Service) LoginURL(ctx context.Context) (string, error) {
	loginURL, err := s.provider.AuthorizationURL(ctx)
	if err != nil {
		return "", err
	}
	s.metrics.RecordLoginStarted()
	return loginURL, nil
}

// CompleteLogin exchanges code with the provider, resolves the local user
// and issues a session token. No user row is written unless both provider
// calls succeeded.
func (s *Service) CompleteLogin(ctx context.Context, code string) (*Session, error) {
	logger := logging.GetLoggerFromContext(ctx)

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	// The client may have gone away while we talked to the provider.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("login abandoned: %w", err)
	}

	u, err := s.users.GetOrCreate(ctx, identity.ExternalID, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	if !u.IsActive {
		logger.Warn("login attempt for inactive account", "user_id", u.ID)
		return nil, ErrForbidden
	}

	token, expiresAt, err := s.tokens.CreateToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	logger.Debug("oauth exchange", "state", StateCompleted, "user_id", u.ID)

	return &Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// Authenticate verifies a session token and loads its user. Token problems
// are reported through the result; the error is reserved for storage faults.
func (s *Service) Authenticate(ctx context.Context, token string) (AuthResult, error) {
	if token == "" {
		s.metrics.RecordTokenRejected("missing")
		return AuthResult{Status: Unauthenticated}, nil
	}

	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, ErrExpiredToken) {
			reason = "expired"
		}
		s.metrics.RecordTokenRejected(reason)
		return AuthResult{Status: Unauthenticated}, nil
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.metrics.RecordTokenRejected("unknown_user")
			return AuthResult{Status: Unauthenticated}, nil
		}
		return AuthResult{}, fmt.Errorf("failed to load session user: %w", err)
	}

	if !u.IsActive {
		s.metrics.RecordTokenRejected("inactive")
		return AuthResult{Status: Forbidden, User: u}, nil
	}

	return AuthResult{Status: Authenticated, User: u}, nil
}
