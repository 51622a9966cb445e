package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	commandsPath = "/api/v1/commands"

	// StatusOK is the only status treated as an accepted submission.
	StatusOK = http.StatusOK

	maxResultBody = 1 << 20
)

var (
	errEmptyHost    = errors.New("host required")
	errEmptyPayload = errors.New("payload required")
)

// Result is what the endpoint returned for a single submission.
type Result struct {
	Status int    `json:"status"`
	Body   []byte `json:"body,omitempty"`
}

// OK reports whether the endpoint accepted the command for enqueueing.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// HTTPError describes a submission the endpoint did not accept.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// AsHTTPError converts a non-OK result into an *HTTPError.
func (r Result) AsHTTPError() *HTTPError {
	if r.OK() {
		return nil
	}
	msg := strings.TrimSpace(string(r.Body))
	if msg == "" {
		msg = http.StatusText(r.Status)
	}
	return &HTTPError{Status: r.Status, Message: msg}
}

// Client submits commands to a single endpoint over plain HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the X-API-Key header on every submission.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout bounds each submission. Zero leaves the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient validates the endpoint coordinates and returns a Client.
func NewClient(host string, port int, opts ...Option) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errEmptyHost
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c := &Client{
		baseURL:    "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the scheme, host and port submissions are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit posts one command envelope. The payload is spliced into the
// envelope byte for byte; it must already be valid JSON. A non-OK status is
// returned as a Result, not an error: errors are reserved for requests that
// never produced a response.
func (c *Client) Submit(ctx context.Context, name Name, version int, payload []byte) (Result, error) {
	if err := ValidateVersion(name, version); err != nil {
		return Result{}, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return Result{}, fmt.Errorf("%s: %w", name, errEmptyPayload)
	}
	body, err := envelope(name, version, payload)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+commandsPath, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBody))
	if err != nil {
		return Result{Status: resp.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	return Result{Status: resp.StatusCode, Body: data}, nil
}

func envelope(name Name, version int, payload []byte) ([]byte, error) {
	cmd, err := json.Marshal(string(name))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 64)
	buf.WriteString(`{"command":`)
	buf.Write(cmd)
	buf.WriteString(`,"version":`)
	buf.WriteString(strconv.Itoa(version))
	buf.WriteString(`,"payload":`)
	buf.Write(bytes.TrimSpace(payload))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
