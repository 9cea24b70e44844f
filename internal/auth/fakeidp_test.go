package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testClientID     = "abc"
	testClientSecret = "shh"
	testRedirectURI  = "https://app/callback"
)

// fakeIDP is an in-process OpenID Connect provider.
type fakeIDP struct {
	server *httptest.Server

	mu             sync.Mutex
	tokenStatus    int
	tokenBody      string
	userinfoStatus int
	userinfoBody   string
	tokenDelay     time.Duration
	lastTokenForm  map[string]string
	lastAuthHeader string

	discoveryHits atomic.Int32
	tokenHits     atomic.Int32
	userinfoHits  atomic.Int32
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()

	f := &fakeIDP{
		tokenStatus:    http.StatusOK,
		tokenBody:      `{"access_token":"tok1","token_type":"Bearer","expires_in":3600}`,
		userinfoStatus: http.StatusOK,
		userinfoBody:   `{"sub":"g-123","email":"a@b.com","email_verified":true,"name":"A B"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		f.discoveryHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                f.server.URL,
			AuthorizationEndpoint: f.server.URL + "/authorize",
			TokenEndpoint:         f.server.URL + "/token",
			UserinfoEndpoint:      f.server.URL + "/userinfo",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHits.Add(1)
		_ = r.ParseForm()

		f.mu.Lock()
		f.lastTokenForm = map[string]string{}
		for k := range r.PostForm {
			f.lastTokenForm[k] = r.PostForm.Get(k)
		}
		status, body, delay := f.tokenStatus, f.tokenBody, f.tokenDelay
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.userinfoHits.Add(1)

		f.mu.Lock()
		f.lastAuthHeader = r.Header.Get("Authorization")
		status, body := f.userinfoStatus, f.userinfoBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIDP) discoveryURL() string {
	return f.server.URL + "/.well-known/openid-configuration"
}

func (f *fakeIDP) setToken(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus, f.tokenBody = status, body
}

func (f *fakeIDP) setUserinfo(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userinfoStatus, f.userinfoBody = status, body
}

func (f *fakeIDP) tokenForm() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenForm
}

func (f *fakeIDP) providerConfig() ProviderConfig {
	return ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURI:  testRedirectURI,
		DiscoveryURL: f.discoveryURL(),
		HTTPTimeout:  2 * time.Second,
		DiscoveryTTL: time.Hour,
	}
}

func (f *fakeIDP) newProvider(t *testing.T, opts ...ProviderOption) *Provider {
	t.Helper()
	p, err := NewProvider(f.providerConfig(), opts...)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}
