package metabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// SetupToken retrieves the one-time setup token a fresh Metabase instance
// exposes until its first admin exists. An empty token means the instance is
// already configured.
func (c *Client) SetupToken(ctx context.Context) (string, error) {
	var result struct {
		SetupToken string `json:"setup-token"`
	}

	if err := c.do(ctx, "setupToken", http.MethodGet, "/api/session/properties", nil, &result, false); err != nil {
		return "", err
	}

	return result.SetupToken, nil
}

// Setup provisions the first admin user on a fresh instance. A forbidden
// response means another party already bootstrapped the instance and is
// reported as ErrAlreadyProvisioned, not as a failure.
func (c *Client) Setup(ctx context.Context, setupToken string, siteName string) error {
	payload := struct {
		Token string `json:"token"`
		User  struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Email     string `json:"email"`
			Password  string `json:"password"`
		} `json:"user"`
		Prefs struct {
			SiteName      string `json:"site_name"`
			AllowTracking bool   `json:"allow_tracking"`
		} `json:"prefs"`
	}{
		Token: setupToken,
	}
	payload.User.FirstName = "Admin"
	payload.User.LastName = "User"
	payload.User.Email = c.adminEmail
	payload.User.Password = c.adminPassword
	payload.Prefs.SiteName = siteName

	if err := c.do(ctx, "setup", http.MethodPost, "/api/setup", payload, nil, false); err != nil {
		var mbErr *Error
		if errors.As(err, &mbErr) && mbErr.Status == http.StatusForbidden {
			return ErrAlreadyProvisioned
		}
		return err
	}

	return nil
}

// SetEmbeddingEnabled flips the global embedding setting. The call is an
// idempotent PUT and safe to repeat on every boot.
func (c *Client) SetEmbeddingEnabled(ctx context.Context, enabled bool) error {
	return c.putSetting(ctx, "enable-embedding", enabled)
}

// SetEmbeddingSecret pushes the shared secret the embedding endpoint verifies
// signed tokens against.
func (c *Client) SetEmbeddingSecret(ctx context.Context, secret string) error {
	return c.putSetting(ctx, "embedding-secret-key", secret)
}

func (c *Client) putSetting(ctx context.Context, key string, value any) error {
	payload := struct {
		Value any `json:"value"`
	}{
		Value: value,
	}

	path := fmt.Sprintf("/api/setting/%s", key)

	return c.do(ctx, "putSetting:"+key, http.MethodPut, path, payload, nil, true)
}
