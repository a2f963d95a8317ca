package remoteapi

import (
	"context"
	"net/http"
	"time"
)

// User is the minimal account record the login response carries.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResult is the response of POST /auth/login and POST /auth/register.
type LoginResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	User         User      `json:"user"`
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var result LoginResult
	body := map[string]string{"email": email, "password": password}
	_, err := c.do(ctx, http.MethodPost, "/auth/login", "", nil, body, &result)
	return result, err
}

// Register creates a new account and logs it in.
func (c *Client) Register(ctx context.Context, email, password string) (LoginResult, error) {
	var result LoginResult
	body := map[string]string{"email": email, "password": password}
	_, err := c.do(ctx, http.MethodPost, "/auth/register", "", nil, body, &result)
	return result, err
}

// RefreshTokens rotates the token pair using a refresh token. This is the
// RefreshFunc plugged into tokens.Refresher.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (access, refresh string, expiresAt time.Time, err error) {
	var result LoginResult
	body := map[string]string{"refresh_token": refreshToken}
	_, err = c.do(ctx, http.MethodPost, "/auth/refresh", "", nil, body, &result)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return result.AccessToken, result.RefreshToken, result.ExpiresAt, nil
}
