// Package httpapi reads the authoritative credit balance from the dashboard's
// HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ineyio/creditsync"
)

// Client is a BalanceFetcher backed by the balance read endpoint.
type Client struct {
	baseURL    string
	path       string
	token      string
	deviceKey  string
	timeout    time.Duration
	httpClient *http.Client
}

var _ creditsync.BalanceFetcher = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithToken sets the bearer token of the signed-in user.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithPath overrides the endpoint path (default "/credits/balance").
func WithPath(path string) Option {
	return func(cl *Client) { cl.path = path }
}

// WithTimeout sets a per-request timeout. Zero leaves it to the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithDeviceKey signs every request with this hex-encoded secp256k1 private key.
func WithDeviceKey(hexKey string) Option {
	return func(cl *Client) { cl.deviceKey = hexKey }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       "/credits/balance",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		return nil, fmt.Errorf("creditsync/httpapi: base url is required")
	}
	if !strings.HasPrefix(c.path, "/") {
		c.path = "/" + c.path
	}

	if c.deviceKey != "" {
		key, err := parsePrivateKey(c.deviceKey)
		if err != nil {
			return nil, err
		}
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		signed := *c.httpClient
		signed.Transport = newSigningTransport(base, key)
		c.httpClient = &signed
	}

	return c, nil
}

// FromConfig creates a client from the endpoint section of a creditsync config.
func FromConfig(cfg creditsync.EndpointConfig, opts ...Option) (*Client, error) {
	base := []Option{
		WithToken(cfg.Token),
		WithTimeout(cfg.Timeout),
		WithDeviceKey(cfg.DeviceKey),
	}
	if cfg.Path != "" {
		base = append(base, WithPath(cfg.Path))
	}
	return New(cfg.BaseURL, append(base, opts...)...)
}

// balanceResponse accepts both the current and the older field names.
type balanceResponse struct {
	Remaining *int64 `json:"remaining"`
	Credits   *int64 `json:"credits"`
	Tier      string `json:"tier"`
	Plan      string `json:"plan"`
}

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

func (c *Client) FetchBalance(ctx context.Context) (creditsync.Balance, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.path, nil)
	if err != nil {
		return creditsync.Balance{}, fmt.Errorf("creditsync/httpapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return creditsync.Balance{}, fmt.Errorf("%w: %w", creditsync.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if err := mapHTTPError(resp); err != nil {
		return creditsync.Balance{}, err
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return creditsync.Balance{}, fmt.Errorf("%w: decode response: %w", creditsync.ErrFetchFailed, err)
	}

	remaining := body.Remaining
	if remaining == nil {
		remaining = body.Credits
	}
	if remaining == nil {
		return creditsync.Balance{}, fmt.Errorf("%w: response has no remaining credits", creditsync.ErrFetchFailed)
	}

	tier := body.Tier
	if tier == "" {
		tier = body.Plan
	}

	b := creditsync.Balance{Remaining: *remaining, Tier: creditsync.Tier(tier)}
	if b.Remaining < 0 {
		b.Remaining = 0
	}
	return b, nil
}

// mapHTTPError turns a non-2xx response into a *creditsync.StatusError carrying the
// server's display message.
func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return fmt.Errorf("%w: %w", creditsync.ErrFetchFailed, &creditsync.StatusError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	})
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		for _, m := range []string{er.Message, er.Detail, er.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}
