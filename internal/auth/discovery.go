package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a DiscoveryCache that has no live entry.
var ErrCacheMiss = errors.New("discovery document not cached")

// DiscoveryDocument holds the provider endpoints we use from the
// OpenID Connect discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri,omitempty"`
}

// Validate checks the endpoints the login flow cannot work without.
func (d *DiscoveryDocument) Validate() error {
	switch {
	case d.AuthorizationEndpoint == "":
		return errors.New("discovery document missing authorization_endpoint")
	case d.TokenEndpoint == "":
		return errors.New("discovery document missing token_endpoint")
	case d.UserinfoEndpoint == "":
		return errors.New("discovery document missing userinfo_endpoint")
	}
	return nil
}

// DiscoveryCache stores discovery documents for a bounded time.
type DiscoveryCache interface {
	Get(ctx context.Context, key string) (*DiscoveryDocument, error)
	Set(ctx context.Context, key string, doc *DiscoveryDocument, ttl time.Duration) error
}

type memoryEntry struct {
	doc       DiscoveryDocument
	expiresAt time.Time
}

// MemoryDiscoveryCache is a process-local DiscoveryCache.
type MemoryDiscoveryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryDiscoveryCache() *MemoryDiscoveryCache {
	return &MemoryDiscoveryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryDiscoveryCache) Get(_ context.Context, key string) (*DiscoveryDocument, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, ErrCacheMiss
	}

	doc := entry.doc
	return &doc, nil
}

func (c *MemoryDiscoveryCache) Set(_ context.Context, key string, doc *DiscoveryDocument, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{doc: *doc, expiresAt: c.now().Add(ttl)}
	return nil
}

// RedisDiscoveryCache shares discovery documents between server processes.
type RedisDiscoveryCache struct {
	client *redis.Client
}

func NewRedisDiscoveryCache(client *redis.Client) *RedisDiscoveryCache {
	return &RedisDiscoveryCache{client: client}
}

// getDiscoveryKey generates the Redis key for a discovery URL
func getDiscoveryKey(key string) string {
	return fmt.Sprintf("oidc_discovery:%s", key)
}

func (c *RedisDiscoveryCache) Get(ctx context.Context, key string) (*DiscoveryDocument, error) {
	data, err := c.client.Get(ctx, getDiscoveryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read discovery cache: %w", err)
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cached discovery document: %w", err)
	}

	return &doc, nil
}

func (c *RedisDiscoveryCache) Set(ctx context.Context, key string, doc *DiscoveryDocument, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode discovery document: %w", err)
	}

	if err := c.client.Set(ctx, getDiscoveryKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write discovery cache: %w", err)
	}

	return nil
}
