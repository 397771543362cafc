// Package metabase provides a typed client for the Metabase HTTP API. All
// network access to the BI engine goes through this package so the rest of
// the system never inspects raw status codes or payloads.
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jpcouto/vitrine/foundation/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Set of error variables for metabase access.
var (
	ErrUnreachable        = errors.New("metabase unreachable")
	ErrAlreadyProvisioned = errors.New("metabase already provisioned")
	ErrNotFound           = errors.New("not found in metabase")
)

// Error represents an unexpected non-2xx response from Metabase after the
// retry budget is spent.
type Error struct {
	Op     string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("metabase: %s: status[%d] body[%s]", e.Op, e.Status, e.Body)
}

// sessionTTL is how long a cached admin session token is trusted before the
// client logs in again. Metabase sessions live much longer than this.
const sessionTTL = 50 * time.Minute

// Config represents the mandatory settings to run the client.
type Config struct {
	Log           *logger.Logger
	BaseURL       string
	AdminEmail    string
	AdminPassword string
	RetryAttempts uint
	RetryBase     time.Duration
	HTTPClient    *http.Client
}

// Client provides access to the Metabase API. The admin credentials are held
// privately; callers work with session-backed calls and never see them.
type Client struct {
	log           *logger.Logger
	baseURL       string
	adminEmail    string
	adminPassword string
	retryAttempts uint
	retryBase     time.Duration
	http          *http.Client

	// available is flipped by Health. While false, every other call fails
	// fast with ErrUnreachable instead of hanging on a dead engine.
	available atomic.Bool

	mu         sync.Mutex
	sessionID  string
	sessionExp time.Time
}

// New constructs a client for the specified Metabase instance.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	retryAttempts := cfg.RetryAttempts
	if retryAttempts == 0 {
		retryAttempts = 3
	}

	retryBase := cfg.RetryBase
	if retryBase == 0 {
		retryBase = 500 * time.Millisecond
	}

	c := Client{
		log:           cfg.Log,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		adminEmail:    cfg.AdminEmail,
		adminPassword: cfg.AdminPassword,
		retryAttempts: retryAttempts,
		retryBase:     retryBase,
		http:          httpClient,
	}

	// Optimistic until the first health probe says otherwise.
	c.available.Store(true)

	return &c
}

// Health checks if the Metabase service is reachable and updates the
// availability flag used to fail fast everywhere else.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.available.Store(false)
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.available.Store(false)
		return fmt.Errorf("%w: health status %d", ErrUnreachable, resp.StatusCode)
	}

	c.available.Store(true)

	return nil
}

// Available reports the result of the last health probe.
func (c *Client) Available() bool {
	return c.available.Load()
}

// =============================================================================

// do performs an API call with bounded exponential backoff. Connection
// failures and 5xx responses are retried since the engine may still be
// starting; any other non-2xx is surfaced immediately as a *Error.
func (c *Client) do(ctx context.Context, op string, method string, path string, in any, out any, authed bool) error {
	if !c.available.Load() {
		return fmt.Errorf("%s: %w", op, ErrUnreachable)
	}

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
	}

	var session string
	if authed {
		var err error
		session, err = c.session(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		if session != "" {
			req.Header.Set("X-Metabase-Session", session)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil

		case resp.StatusCode >= 500:
			return nil, &Error{Op: op, Status: resp.StatusCode, Body: truncate(respBody)}

		case resp.StatusCode == http.StatusUnauthorized && authed:
			// The cached session went stale underneath us. Drop it so the
			// next call logs in again.
			c.expireSession()
			return nil, backoff.Permanent(&Error{Op: op, Status: resp.StatusCode, Body: truncate(respBody)})

		default:
			return nil, backoff.Permanent(&Error{Op: op, Status: resp.StatusCode, Body: truncate(respBody)})
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase

	respBody, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.retryAttempts),
	)
	if err != nil {
		var mbErr *Error
		if errors.As(err, &mbErr) {
			return mbErr
		}
		return fmt.Errorf("%s: %w: %s", op, ErrUnreachable, err)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}
	}

	return nil
}

// session returns a cached admin session token, logging in when the cache is
// empty or expired.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" && time.Now().Before(c.sessionExp) {
		return c.sessionID, nil
	}

	credentials := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{
		Username: c.adminEmail,
		Password: c.adminPassword,
	}

	var result struct {
		ID string `json:"id"`
	}

	if err := c.do(ctx, "login", http.MethodPost, "/api/session", credentials, &result, false); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	c.sessionID = result.ID
	c.sessionExp = time.Now().Add(sessionTTL)

	return c.sessionID, nil
}

func (c *Client) expireSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionID = ""
	c.sessionExp = time.Time{}
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
