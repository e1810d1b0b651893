package client

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

// Login exchanges credentials for a bearer token. The token is not
// installed automatically; callers decide when the session is established.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.AuthPayload, error) {
	var out models.AuthPayload
	if _, err := c.Do(ctx, http.MethodPost, "/auth/login", nil,
		models.Credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Register(ctx context.Context, creds models.Credentials) (*models.AuthPayload, error) {
	var out models.AuthPayload
	if _, err := c.Do(ctx, http.MethodPost, "/auth/register", nil, creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	return err
}

// Me returns the user behind the current credential. The user may come
// bare or wrapped as {"user": {...}}.
func (c *HTTPClient) Me(ctx context.Context) (*models.User, error) {
	env, err := c.Do(ctx, http.MethodGet, "/auth/me", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := DecodeItem(env.Data, "user", &u); err != nil || u.ID == "" {
		return nil, &APIError{Kind: KindUnauthorized, Message: "no user in session"}
	}
	return &u, nil
}

// CreateSession asks the service to mint its session cookie for the
// current bearer token. The cookie lands in the client's jar.
func (c *HTTPClient) CreateSession(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, "/auth/create-session", nil, struct {
		Token string `json:"token"`
	}{Token: c.Token()}, nil)
	return err
}

func (c *HTTPClient) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.Do(ctx, http.MethodPost, "/auth/forgot-password", nil, map[string]string{"email": email}, nil)
	return err
}

func (c *HTTPClient) ResetPassword(ctx context.Context, token, password string) error {
	_, err := c.Do(ctx, http.MethodPost, "/auth/reset-password", nil,
		map[string]string{"token": token, "password": password}, nil)
	return err
}

// Health pings the service.
func (c *HTTPClient) Health(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodGet, "/health", nil, nil, nil)
	return err
}
