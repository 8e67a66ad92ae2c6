package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/vrcrugby/subgate/internal/platform/telemetry"
)

const (
	DefaultBaseURL = "https://api.mercadopago.com"
	DefaultTimeout = 30 * time.Second

	idempotencyHeader = "X-Idempotency-Key"
	maxResponseBytes  = 4 << 20
	userAgent         = "subgate/1.0"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Config configures the API client.
type Config struct {
	BaseURL     string
	AccessToken string
	// Timeout bounds every call, including reading the response.
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      clock.Clock
	Metrics    *telemetry.Metrics
}

// Client talks to the Mercado Pago REST API. It is safe for concurrent use;
// each call gets its own timeout and no call is retried.
type Client struct {
	baseURL     string
	accessToken string
	timeout     time.Duration
	httpClient  *http.Client
	clock       clock.Clock
	metrics     *telemetry.Metrics
}

// NewClient validates cfg and fills in defaults.
func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, ErrAccessTokenRequired
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parsing mercadopago base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: token,
		timeout:     timeout,
		httpClient:  httpClient,
		clock:       clk,
		metrics:     cfg.Metrics,
	}, nil
}

// do sends one request. endpoint is the path template used as metric label.
func (c *Client) do(ctx context.Context, method, endpoint, path string, query url.Values, body any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := codec.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s %s body: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s %s request: %w", method, endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPut {
		req.Header.Set(idempotencyHeader, uuid.NewString())
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRemoteRequest(method, endpoint, 0, c.clock.Since(start))
		return nil, fmt.Errorf("sending %s %s request: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveRemoteRequest(method, endpoint, resp.StatusCode, c.clock.Since(start))
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newRemoteAPIError(method, target, resp.StatusCode, respBody)
	}
	if !codec.Valid(respBody) {
		return nil, fmt.Errorf("%w: %s %s status %d", ErrInvalidResponse, method, endpoint, resp.StatusCode)
	}

	return json.RawMessage(respBody), nil
}
