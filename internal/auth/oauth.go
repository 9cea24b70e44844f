package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/logging"
)

const maxResponseSize = 1 << 20

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "email", "profile"}

// ExchangeState names the steps of one login attempt. They are logged as
// the exchange advances.
type ExchangeState string

const (
	StateStart            ExchangeState = "START"
	StateAwaitingCallback ExchangeState = "AWAITING_CALLBACK"
	StateTokenExchanged   ExchangeState = "TOKEN_EXCHANGED"
	StateProfileFetched   ExchangeState = "PROFILE_FETCHED"
	StateCompleted        ExchangeState = "COMPLETED"
	StateFailed           ExchangeState = "FAILED"
)

// Identity is the provider profile decoded from the userinfo endpoint.
type Identity struct {
	ExternalID    string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// ProviderConfig configures an OpenID Connect provider client.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	DiscoveryURL string
	Scopes       []string
	HTTPTimeout  time.Duration
	DiscoveryTTL time.Duration
}

// Provider drives the authorization-code flow against an OpenID Connect
// provider located through its discovery document.
type Provider struct {
	cfg        ProviderConfig
	httpClient *http.Client
	cache      DiscoveryCache
	metrics    MetricsRecorder
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient replaces the outbound client. Its Timeout is kept as given.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithDiscoveryCache replaces the default in-memory discovery cache.
func WithDiscoveryCache(cache DiscoveryCache) ProviderOption {
	return func(p *Provider) {
		p.cache = cache
	}
}

// WithProviderMetrics records upstream call latency.
func WithProviderMetrics(m MetricsRecorder) ProviderOption {
	return func(p *Provider) {
		p.metrics = m
	}
}

func NewProvider(cfg ProviderConfig, opts ...ProviderOption) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirect uri is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, fmt.Errorf("discovery url is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.DiscoveryTTL <= 0 {
		cfg.DiscoveryTTL = time.Hour
	}

	p := &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		cache:      NewMemoryDiscoveryCache(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// AuthorizationURL builds the URL the browser is sent to. No state is kept
// between calls.
func (p *Provider) AuthorizationURL(ctx context.Context) (string, error) {
	logger := logging.GetLoggerFromContext(ctx)
	logger.Debug("oauth exchange", "state", StateStart)

	doc, err := p.discover(ctx)
	if err != nil {
		logger.Debug("oauth exchange", "state", StateFailed)
		return "", err
	}

	authURL := p.oauth2Config(doc).AuthCodeURL("")
	logger.Debug("oauth exchange", "state", StateAwaitingCallback)
	return authURL, nil
}

// Exchange trades an authorization code for the caller's identity: one
// token request, then one userinfo request. Codes are single-use, so the
// exchange is never retried.
func (p *Provider) Exchange(ctx context.Context, code string) (*Identity, error) {
	logger := logging.GetLoggerFromContext(ctx)

	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}

	doc, err := p.discover(ctx)
	if err != nil {
		logger.Debug("oauth exchange", "state", StateFailed, "step", "discovery")
		return nil, err
	}

	token, err := p.exchangeCode(ctx, doc, code)
	if err != nil {
		logger.Debug("oauth exchange", "state", StateFailed, "step", "token")
		return nil, err
	}
	logger.Debug("oauth exchange", "state", StateTokenExchanged)

	identity, err := p.fetchUserinfo(ctx, doc, token)
	if err != nil {
		logger.Debug("oauth exchange", "state", StateFailed, "step", "userinfo")
		return nil, err
	}
	logger.Debug("oauth exchange", "state", StateProfileFetched)

	return identity, nil
}

func (p *Provider) oauth2Config(doc *DiscoveryDocument) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURI,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (p *Provider) exchangeCode(ctx context.Context, doc *DiscoveryDocument, code string) (*oauth2.Token, error) {
	logger := logging.GetLoggerFromContext(ctx)

	start := time.Now()
	token, err := p.oauth2Config(doc).Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient), code)
	p.metrics.RecordUpstreamLatency("token", time.Since(start))

	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status := retrieveErr.Response.StatusCode
			// Only the status and OAuth error code are logged; the body may
			// echo credentials.
			logger.Warn("token endpoint rejected exchange",
				"status", status,
				"error_code", retrieveErr.ErrorCode,
			)
			if status >= 400 && status < 500 {
				return nil, fmt.Errorf("token exchange rejected: %w", ErrUpstreamAuthFailure)
			}
			return nil, fmt.Errorf("token endpoint returned %d: %w", status, ErrUpstreamUnavailable)
		}

		logger.Warn("token exchange failed", "error", err)
		return nil, fmt.Errorf("token exchange failed: %w", ErrUpstreamUnavailable)
	}

	return token, nil
}

func (p *Provider) fetchUserinfo(ctx context.Context, doc *DiscoveryDocument, token *oauth2.Token) (*Identity, error) {
	logger := logging.GetLoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", ErrUpstreamUnavailable)
	}
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	p.metrics.RecordUpstreamLatency("userinfo", time.Since(start))
	if err != nil {
		logger.Warn("userinfo request failed", "error", err)
		return nil, fmt.Errorf("userinfo request failed: %w", ErrUpstreamUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.Warn("userinfo endpoint rejected access token", "status", resp.StatusCode)
		return nil, fmt.Errorf("userinfo rejected: %w", ErrUpstreamAuthFailure)
	case resp.StatusCode != http.StatusOK:
		logger.Warn("userinfo endpoint returned unexpected status", "status", resp.StatusCode)
		return nil, fmt.Errorf("userinfo returned %d: %w", resp.StatusCode, ErrUpstreamUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", ErrUpstreamUnavailable)
	}

	var identity Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		logger.Warn("userinfo response is not valid JSON")
		return nil, fmt.Errorf("failed to decode userinfo: %w", ErrUpstreamUnavailable)
	}

	if identity.ExternalID == "" || identity.Email == "" {
		logger.Warn("userinfo response missing required claims",
			"has_sub", identity.ExternalID != "",
			"has_email", identity.Email != "",
		)
		return nil, fmt.Errorf("userinfo missing sub or email: %w", ErrUpstreamUnavailable)
	}

	return &identity, nil
}

// discover returns the provider's discovery document, from cache when
// possible. Cache faults are logged and bypassed.
func (p *Provider) discover(ctx context.Context) (*DiscoveryDocument, error) {
	logger := logging.GetLoggerFromContext(ctx)
	key := p.cfg.DiscoveryURL

	doc, err := p.cache.Get(ctx, key)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn("discovery cache read failed", "error", err)
	}

	doc, err = p.fetchDiscovery(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, doc, p.cfg.DiscoveryTTL); err != nil {
		logger.Warn("discovery cache write failed", "error", err)
	}

	return doc, nil
}

func (p *Provider) fetchDiscovery(ctx context.Context) (*DiscoveryDocument, error) {
	logger := logging.GetLoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DiscoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", ErrUpstreamUnavailable)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	p.metrics.RecordUpstreamLatency("discovery", time.Since(start))
	if err != nil {
		logger.Warn("discovery request failed", "error", err)
		return nil, fmt.Errorf("discovery request failed: %w", ErrUpstreamUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("discovery endpoint returned unexpected status", "status", resp.StatusCode)
		return nil, fmt.Errorf("discovery returned %d: %w", resp.StatusCode, ErrUpstreamUnavailable)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", ErrUpstreamUnavailable)
	}

	if err := doc.Validate(); err != nil {
		logger.Warn("discovery document invalid", "error", err)
		return nil, fmt.Errorf("%v: %w", err, ErrUpstreamUnavailable)
	}

	return &doc, nil
}
