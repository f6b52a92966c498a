// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultPort is appended to hosts that do not name a port.
	DefaultPort = "11434"
	// GeneratePath is the completion endpoint.
	GeneratePath = "/api/generate"
	// DefaultNumCtx is the context window requested on every call.
	DefaultNumCtx = 4096
	// DefaultTimeout applies when an Endpoint carries no timeout.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is decoded.
	maxResponseBytes = 16 << 20
)

// =============================================================================
// HOST NORMALIZATION
// =============================================================================

// NormalizeHost trims the host and prefixes "http://" when no scheme is
// present. An empty or blank host normalizes to "".
func NormalizeHost(host string) string {
	h := strings.TrimRight(strings.TrimSpace(host), "/")
	if h == "" {
		return ""
	}
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	return h
}

// BaseURL returns scheme://host:port[/prefix] for a configured host. The
// default port is added only when the host does not already carry one.
func BaseURL(host string) (string, error) {
	normalized := NormalizeHost(host)
	if normalized == "" {
		return "", ErrNoHost
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid host %q: missing hostname", host)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), DefaultPort)
	}

	return u.Scheme + "://" + u.Host + strings.TrimRight(u.EscapedPath(), "/"), nil
}

// GenerateURL returns the completion URL for host.
func GenerateURL(host string) (string, error) {
	base, err := BaseURL(host)
	if err != nil {
		return "", err
	}
	return base + GeneratePath, nil
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// NumCtx is the context window sent in options.num_ctx (default: 4096).
	NumCtx int

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		NumCtx: DefaultNumCtx,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends completion requests to Ollama-compatible backends.
// The backend is chosen per call, so one Client serves every tier.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.NumCtx <= 0 {
		config.NumCtx = DefaultNumCtx
	}

	// No client-level Timeout: every call carries its own deadline.
	httpClient := &http.Client{}
	if config.Transport != nil {
		httpClient.Transport = config.Transport
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// NumCtx returns the context window sent with each request.
func (c *Client) NumCtx() int {
	return c.config.NumCtx
}

// =============================================================================
// COMPLETION
// =============================================================================

// Send issues exactly one non-streaming completion request to ep and waits
// up to ep.Timeout for the full response.
func (c *Client) Send(ctx context.Context, ep Endpoint, prompt string) Result {
	start := time.Now()

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	endpointURL, err := GenerateURL(ep.Host)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			return failed(clientErr, 0, time.Since(start))
		}
		return failed(unreachableError(ep.Host, err), 0, time.Since(start))
	}

	body, err := json.Marshal(GenerateRequest{
		Model:   ep.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: &Options{NumCtx: c.config.NumCtx},
	})
	if err != nil {
		return failed(&ClientError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}, 0, time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return failed(unreachableError(ep.Host, err), 0, time.Since(start))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failed(transportError(ctx, ep.Host, timeout, err), 0, time.Since(start))
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr APIError
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&apiErr)
		return failed(serverFaultError(resp.StatusCode, apiErr.Error), resp.StatusCode, time.Since(start))
	}

	var result GenerateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		// The deadline can also fire while the body is still arriving.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failed(timeoutError(timeout, err), resp.StatusCode, time.Since(start))
		}
		return failed(malformedError(err), resp.StatusCode, time.Since(start))
	}
	if result.Response == nil {
		return failed(malformedError(errors.New(`missing "response" field`)), resp.StatusCode, time.Since(start))
	}

	return Result{
		OK:         true,
		Text:       *result.Response,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		Stats:      &result,
	}
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Ping checks that the backend at host accepts connections by issuing a GET
// to its base URL. Any HTTP answer counts as alive, whatever its status.
func (c *Client) Ping(ctx context.Context, host string, timeout time.Duration) error {
	base, err := BaseURL(host)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			return clientErr
		}
		return unreachableError(host, err)
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
	if err != nil {
		return unreachableError(host, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, host, timeout, err)
	}
	drainAndClose(resp.Body)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// transportError maps an http.Client.Do failure to a timeout or an
// unreachable error.
func transportError(ctx context.Context, host string, timeout time.Duration, err error) *ClientError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutError(timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(timeout, err)
	}
	return unreachableError(host, err)
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, maxResponseBytes))
	r.Close()
}
