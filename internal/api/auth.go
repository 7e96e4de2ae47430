package api

import (
	"context"
	"net/http"

	"resumelift/internal/errors"
	"resumelift/internal/types"
)

// Register creates a new account.
func (c *Client) Register(ctx context.Context, email, password string) (types.User, error) {
	var user types.User
	req := types.RegisterRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// Login authenticates and persists the returned bearer token. The
// previous session's caches are dropped so nothing from another
// account survives.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var token types.TokenResponse
	req := types.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &token); err != nil {
		return err
	}
	if token.AccessToken == "" {
		return errors.NewAuthError(errors.ErrCodeAuthFailed,
			"Login succeeded but no access token was returned", nil)
	}

	c.invalidateSessionCaches()
	return c.session.SetToken(token.AccessToken)
}

// Logout forgets the session token and drops every cached value tied
// to it. Purely local: the backend holds no session state.
func (c *Client) Logout() error {
	c.invalidateSessionCaches()
	return c.session.Clear()
}

func (c *Client) invalidateSessionCaches() {
	c.userCache.InvalidateAll()
	c.keyCache.InvalidateAll()
	c.runsCache.InvalidateAll()
}
