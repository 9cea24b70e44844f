package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/httputil"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/logging"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const UserContextKey ContextKey = "user"

// Authenticator checks a session token. *Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (AuthResult, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	authenticator Authenticator
}

func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// RequireAuth admits requests carrying a valid session for an active user
// and stores that user in the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		token, ok := extractToken(r)
		if !ok {
			respondUnauthenticated(w)
			return
		}

		result, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			logger.Error("failed to authenticate request", "error", err)
			respondError(w, "internal server error", httputil.CodeInternal, http.StatusInternalServerError)
			return
		}

		switch result.Status {
		case Authenticated:
			ctx := context.WithValue(r.Context(), UserContextKey, result.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		case Forbidden:
			logger.Warn("request from inactive account", "user_id", result.User.ID)
			respondError(w, ErrForbidden.Error(), httputil.CodeAccountInactive, http.StatusForbidden)
		default:
			respondUnauthenticated(w)
		}
	})
}

// extractToken reads the Authorization bearer header first, then the
// session cookie. A malformed header is not retried against the cookie.
func extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}

	token, err := GetSessionTokenFromCookie(r)
	if err != nil {
		return "", false
	}
	return token, true
}

// respondUnauthenticated gives the same answer for every token failure.
func respondUnauthenticated(w http.ResponseWriter) {
	respondError(w, ErrUnauthenticated.Error(), httputil.CodeUnauthorized, http.StatusUnauthorized)
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	return u, ok && u != nil
}
