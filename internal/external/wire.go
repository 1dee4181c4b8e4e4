package external

import (
	"fmt"
	"log/slog"

	"reorder/internal/config"

	"golang.org/x/time/rate"
)

// NewZohoFromConfig builds the token source, the throttled BaseClient and the
// ZohoClient from process configuration. A configured AccessToken is used as
// is; otherwise tokens come from the refresh flow, shared through Redis when a
// URL is configured. The returned close func releases that connection and is
// never nil.
func NewZohoFromConfig(cfg config.ZohoConfig, cache config.CacheConfig, userAgent string, logger *slog.Logger) (*ZohoClient, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	closeFn := func() error { return nil }
	httpClient := NewHTTPClient(cfg.HTTPTimeout)

	var tokens TokenProvider
	if cfg.AccessToken.IsSet() {
		logger.Warn("using fixed ZOHO_ACCESS_TOKEN, token refresh disabled")
		tokens = StaticToken(cfg.AccessToken.Unmask())
	} else {
		var tokenCache TokenCache
		if cache.RedisURL.IsSet() {
			rc, err := NewRedisTokenCache(cache.RedisURL.Unmask())
			if err != nil {
				return nil, closeFn, fmt.Errorf("token cache: %w", err)
			}
			tokenCache = rc
			closeFn = rc.Close
		}
		tokens = NewZohoTokenSource(ZohoTokenConfig{
			AccountsBase: cfg.AccountsBase,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Unmask(),
			RefreshToken: cfg.RefreshToken.Unmask(),
			HTTPClient:   httpClient,
			Cache:        tokenCache,
			Logger:       logger,
		})
	}

	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.BaseBackoff > 0 {
		policy.BaseBackoff = cfg.BaseBackoff
	}

	rpm := max(1, cfg.RequestsPerMinute)
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)

	base := NewBaseClient(httpClient, policy, userAgent, WithRateLimiter(limiter))
	client := NewZohoClient(base, ZohoClientConfig{
		BaseURL: cfg.InventoryBase,
		OrgID:   cfg.OrgID,
		Tokens:  tokens,
		Logger:  logger,
	})
	return client, closeFn, nil
}
