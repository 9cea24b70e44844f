package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/httputil"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/logging"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/user"
)

// RateLimiter caps requests per client and purpose. *ratelimit.Limiter
// implements it.
type RateLimiter interface {
	Allow(ctx context.Context, key, purpose string) (bool, error)
}

// HandlerConfig holds the HTTP-facing session settings.
type HandlerConfig struct {
	// PostLoginURL is where the browser lands after a successful callback.
	PostLoginURL  string
	TokenLifetime time.Duration
	SecureCookies bool
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
	metrics     MetricsRecorder
	cfg         HandlerConfig
}

// NewHandler wires the auth endpoints. rateLimiter may be nil.
func NewHandler(service *Service, rateLimiter RateLimiter, metrics MetricsRecorder, cfg HandlerConfig) *Handler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		cfg:         cfg,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// LoginResponse carries the provider authorization URL
type LoginResponse struct {
	LoginURL string `json:"login_url"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// ProfileMetadata describes how the account authenticates
type ProfileMetadata struct {
	Provider string `json:"provider"`
}

// ProfileResponse is the public view of the current user
type ProfileResponse struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	IsActive  bool            `json:"is_active"`
	Metadata  ProfileMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Login starts the OAuth flow
// @Summary      Start login
// @Description  Returns the identity provider URL the browser should visit to sign in.
// @Tags         auth
// @Produce      json
// @Success      200 {object} LoginResponse
// @Failure      429 {object} ErrorResponse "Too many requests"
// @Failure      502 {object} ErrorResponse "Identity provider unavailable"
// @Router       /auth/login [get]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "login") {
		return
	}

	loginURL, err := h.service.LoginURL(r.Context())
	if err != nil {
		logger.Error("failed to build login url", "error", err)
		respondError(w, "identity provider unavailable", httputil.CodeUpstreamUnavailable, http.StatusBadGateway)
		return
	}

	respondJSON(w, LoginResponse{LoginURL: loginURL}, http.StatusOK)
}

// Callback completes the OAuth flow
// @Summary      OAuth callback
// @Description  Exchanges the authorization code, sets the session cookie and redirects to the front end.
// @Tags         auth
// @Produce      json
// @Param        code  query string true "Authorization code"
// @Success      302
// @Failure      400 {object} ErrorResponse "Missing authorization code"
// @Failure      401 {object} ErrorResponse "Authentication failed"
// @Failure      403 {object} ErrorResponse "Account inactive"
// @Failure      409 {object} ErrorResponse "Email linked to another identity"
// @Failure      429 {object} ErrorResponse "Too many requests"
// @Failure      502 {object} ErrorResponse "Identity provider unavailable"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/callback [get]
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "callback") {
		return
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		logger.Warn("identity provider returned an error", "error_code", providerErr)
		h.metrics.RecordCallback(CallbackUpstreamAuthFailure)
		respondError(w, "authentication failed", httputil.CodeUpstreamAuthFailed, http.StatusUnauthorized)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.metrics.RecordCallback(CallbackMissingCode)
		respondError(w, ErrMissingCode.Error(), httputil.CodeMissingCode, http.StatusBadRequest)
		return
	}

	session, err := h.service.CompleteLogin(r.Context(), code)
	if err != nil {
		h.respondLoginError(w, logger, err)
		return
	}

	SetSessionCookie(w, session.Token, h.cfg.TokenLifetime, h.cfg.SecureCookies)
	h.metrics.RecordCallback(CallbackSuccess)

	logger.Info("user logged in", "user_id", session.User.ID)

	http.Redirect(w, r, h.cfg.PostLoginURL, http.StatusFound)
}

func (h *Handler) respondLoginError(w http.ResponseWriter, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, ErrMissingCode):
		h.metrics.RecordCallback(CallbackMissingCode)
		respondError(w, err.Error(), httputil.CodeMissingCode, http.StatusBadRequest)
	case errors.Is(err, ErrUpstreamAuthFailure):
		logger.Warn("login rejected by identity provider", "error", err)
		h.metrics.RecordCallback(CallbackUpstreamAuthFailure)
		respondError(w, "authentication failed", httputil.CodeUpstreamAuthFailed, http.StatusUnauthorized)
	case errors.Is(err, ErrUpstreamUnavailable):
		logger.Error("identity provider unavailable", "error", err)
		h.metrics.RecordCallback(CallbackUpstreamUnavailable)
		respondError(w, "identity provider unavailable", httputil.CodeUpstreamUnavailable, http.StatusBadGateway)
	case errors.Is(err, ErrForbidden):
		h.metrics.RecordCallback(CallbackInactive)
		respondError(w, err.Error(), httputil.CodeAccountInactive, http.StatusForbidden)
	case errors.Is(err, user.ErrIdentityConflict):
		logger.Warn("login conflicts with existing account", "error", err)
		h.metrics.RecordCallback(CallbackIdentityConflict)
		respondError(w, "email is already linked to another account", httputil.CodeIdentityConflict, http.StatusConflict)
	default:
		logger.Error("failed to complete login", "error", err)
		h.metrics.RecordCallback(CallbackError)
		respondError(w, "internal server error", httputil.CodeInternal, http.StatusInternalServerError)
	}
}

// Logout clears the session cookie
// @Summary      Logout
// @Description  Clears the session cookie. The token itself stays valid until it expires.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MessageResponse
// @Failure      401 {object} ErrorResponse "Unauthorized"
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ClearSessionCookie(w, h.cfg.SecureCookies)

	if u, ok := GetUserFromContext(r.Context()); ok {
		logger.Info("user logged out", "user_id", u.ID)
	}

	respondJSON(w, MessageResponse{Message: "Successfully logged out"}, http.StatusOK)
}

// Profile returns the current user
// @Summary      Current user
// @Description  Returns the authenticated user's public fields.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ProfileResponse
// @Failure      401 {object} ErrorResponse "Unauthorized"
// @Failure      403 {object} ErrorResponse "Account inactive"
// @Router       /auth/profile [get]
// @Router       /users/me [get]
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := GetUserFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	respondJSON(w, ProfileResponse{
		ID:        u.ID,
		Email:     u.Email,
		IsActive:  u.IsActive,
		Metadata:  ProfileMetadata{Provider: u.Provider()},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}, http.StatusOK)
}

// allow applies the per-IP rate limit. Limiter faults let the request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	logger := logging.GetLoggerFromContext(r.Context())
	ip := getClientIP(r)

	allowed, err := h.rateLimiter.Allow(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err)
		return true
	}
	if !allowed {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		respondError(w, "too many requests, please try again later", httputil.CodeRateLimited, http.StatusTooManyRequests)
		return false
	}
	return true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP returns the client address. chi's RealIP middleware has
// already folded X-Forwarded-For / X-Real-IP into RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
