package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"reorder/internal/types"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// TokenProvider supplies a current provider access token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenCache shares access tokens between processes. Get reports a miss with
// found=false and a nil error.
type TokenCache interface {
	Get(ctx context.Context, key string) (token string, found bool, err error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// TokenCacheKey is the cache key for the shared Zoho access token.
const TokenCacheKey = "reorder:zoho:token"

// tokenExpiryMargin is how long before expiry a token stops being handed out.
const tokenExpiryMargin = 10 * time.Second

// ZohoTokenConfig holds the refresh-token credentials.
type ZohoTokenConfig struct {
	AccountsBase string
	ClientID     string
	ClientSecret string
	RefreshToken string
	HTTPClient   *http.Client
	Cache        TokenCache
	Logger       *slog.Logger
}

// ZohoTokenSource exchanges a long-lived refresh token for access tokens. A
// token is reused in-process until 10 seconds before it expires. When a cache
// is configured, fresh tokens are published there and checked before
// refreshing so that concurrent Lambda instances share one token instead of
// each refreshing. No lock is held across a cache round trip.
type ZohoTokenSource struct {
	source oauth2.TokenSource
	cache  TokenCache
	logger *slog.Logger

	mu     sync.Mutex // guards token and expiry
	token  string
	expiry time.Time
}

// NewZohoTokenSource builds the refresh flow against {AccountsBase}/oauth/v2/token.
func NewZohoTokenSource(cfg ZohoTokenConfig) *ZohoTokenSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(15 * time.Second)
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(cfg.AccountsBase, "/") + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// The context only carries the HTTP client; it outlives any single call.
	base := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	refresher := oc.TokenSource(base, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return &ZohoTokenSource{
		source: oauth2.ReuseTokenSourceWithExpiry(nil, refresher, tokenExpiryMargin),
		cache:  cfg.Cache,
		logger: logger,
	}
}

// Token returns a valid access token.
func (s *ZohoTokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "token request cancelled", err)
	}

	if tok, ok := s.current(); ok {
		return tok, nil
	}

	if s.cache != nil {
		cached, found, err := s.cache.Get(ctx, TokenCacheKey)
		if err != nil {
			s.logger.WarnContext(ctx, "token cache read failed", "error", err)
		} else if found {
			return cached, nil
		}
	}

	// The reuse source serializes concurrent refreshes itself.
	tok, err := s.source.Token()
	if err != nil {
		return "", mapTokenError(err)
	}
	s.remember(tok)

	if s.cache != nil && !tok.Expiry.IsZero() {
		if ttl := time.Until(tok.Expiry) - tokenExpiryMargin; ttl > 0 {
			if err := s.cache.Set(ctx, TokenCacheKey, tok.AccessToken, ttl); err != nil {
				s.logger.WarnContext(ctx, "token cache write failed", "error", err)
			}
		}
	}

	return tok.AccessToken, nil
}

// current returns the in-process token while it is still valid.
func (s *ZohoTokenSource) current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	if !s.expiry.IsZero() && !time.Now().Before(s.expiry) {
		return "", false
	}
	return s.token, true
}

func (s *ZohoTokenSource) remember(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok.AccessToken
	s.expiry = time.Time{}
	if !tok.Expiry.IsZero() {
		s.expiry = tok.Expiry.Add(-tokenExpiryMargin)
	}
}

// mapTokenError classifies a refresh failure. A rejected refresh token is
// permanent; anything else may heal on a later invocation.
func mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		switch {
		case status == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "zoho token refresh rate limited", err)
		case status >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("zoho token endpoint returned %d", status), err)
		default:
			return types.NewAppError(types.ErrCodeUpstreamAuthFailed, fmt.Sprintf("zoho token refresh rejected (%d)", status), err)
		}
	}
	if errors.As(err, &re) {
		return types.NewAppError(types.ErrCodeUpstreamAuthFailed, "zoho token refresh rejected", err)
	}
	if strings.Contains(err.Error(), "missing access_token") {
		// Zoho answers a revoked refresh token with 200 {"error":"invalid_code"}.
		return types.NewAppError(types.ErrCodeUpstreamAuthFailed, "zoho token response had no access token", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "zoho token refresh failed", err)
}

// StaticToken is a TokenProvider for a fixed token, selected by
// ZOHO_ACCESS_TOKEN in local runs.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// RedisTokenCache implements TokenCache on go-redis.
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache connects to the Redis instance at redisURL.
func NewRedisTokenCache(redisURL string) (*RedisTokenCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisTokenCache{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity.
func (c *RedisTokenCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return c.client.Set(ctx, key, token, ttl).Err()
}

// Close releases the underlying connection pool.
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}

var (
	_ TokenProvider = (*ZohoTokenSource)(nil)
	_ TokenProvider = StaticToken("")
	_ TokenCache    = (*RedisTokenCache)(nil)
)
