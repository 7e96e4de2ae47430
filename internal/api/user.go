package api

import (
	"context"
	"net/http"

	"resumelift/internal/types"
)

// Cache keys for the single-entry user-scoped domains.
const (
	userCacheKey      = "me"
	keyStatusCacheKey = "status"
)

// CurrentUser returns the authenticated user's profile, cached for the
// configured TTL. force bypasses the cache and refreshes it.
func (c *Client) CurrentUser(ctx context.Context, force bool) (types.User, error) {
	if err := c.requireAuth(); err != nil {
		return types.User{}, err
	}

	recordLookup(ctx, c.metrics, "current_user", force, c.userCache, userCacheKey)
	return c.userCache.Read(ctx, userCacheKey, c.cfg.Cache.CurrentUserTTL,
		func(ctx context.Context) (types.User, error) {
			var user types.User
			err := c.do(ctx, http.MethodGet, "/api/user/me", nil, &user)
			return user, err
		}, force)
}

// CachedCurrentUser returns the cached profile without fetching.
func (c *Client) CachedCurrentUser() (types.User, bool) {
	return c.userCache.Peek(userCacheKey)
}

// APIKeyStatus reports whether the account has a stored provider API
// key, cached for the configured TTL.
func (c *Client) APIKeyStatus(ctx context.Context, force bool) (types.APIKeyStatus, error) {
	if err := c.requireAuth(); err != nil {
		return types.APIKeyStatus{}, err
	}

	recordLookup(ctx, c.metrics, "api_key_status", force, c.keyCache, keyStatusCacheKey)
	return c.keyCache.Read(ctx, keyStatusCacheKey, c.cfg.Cache.APIKeyStatusTTL,
		func(ctx context.Context) (types.APIKeyStatus, error) {
			var status types.APIKeyStatus
			err := c.do(ctx, http.MethodGet, "/api/user/api-key/status", nil, &status)
			return status, err
		}, force)
}

// CachedAPIKeyStatus returns the cached status without fetching.
func (c *Client) CachedAPIKeyStatus() (types.APIKeyStatus, bool) {
	return c.keyCache.Peek(keyStatusCacheKey)
}

// SaveAPIKey stores the provider API key on the account. On success
// the status cache is optimistically set: the effect of the mutation
// is known, so no round trip is spent re-reading it.
func (c *Client) SaveAPIKey(ctx context.Context, apiKey string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	req := types.SaveAPIKeyRequest{APIKey: apiKey}
	if err := c.do(ctx, http.MethodPost, "/api/user/api-key", req, nil); err != nil {
		return err
	}
	c.keyCache.Set(keyStatusCacheKey, types.APIKeyStatus{HasAPIKey: true}, c.cfg.Cache.APIKeyStatusTTL)
	return nil
}

// DeleteAPIKey removes the stored provider API key and optimistically
// updates the status cache.
func (c *Client) DeleteAPIKey(ctx context.Context) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodDelete, "/api/user/api-key", nil, nil); err != nil {
		return err
	}
	c.keyCache.Set(keyStatusCacheKey, types.APIKeyStatus{HasAPIKey: false}, c.cfg.Cache.APIKeyStatusTTL)
	return nil
}
