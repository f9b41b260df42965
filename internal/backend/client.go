package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the backend connection settings
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000/api/v1",
		Timeout: 10 * time.Second,
	}
}

// RequestError is returned for non-2xx responses
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// IsUnauthorized reports whether err is a 401 from the backend
func IsUnauthorized(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized
}

// Client talks to the backend REST API
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration

	mu    sync.RWMutex
	token string

	// re-login on 401, see SetCredentials
	loginMu  sync.Mutex
	username string
	password string
	onToken  func(string)
}

// NewClient creates a backend client
func NewClient(cfg Config) *Client {
	return NewWithHTTPClient(cfg, &http.Client{})
}

// NewWithHTTPClient creates a client using the given http.Client
func NewWithHTTPClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		timeout: timeout,
		token:   cfg.Token,
	}
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetCredentials lets the client log in again when the backend rejects the
// bearer token mid-session. onToken, if set, receives every new token.
func (c *Client) SetCredentials(username, password string, onToken func(string)) {
	c.loginMu.Lock()
	c.username = username
	c.password = password
	c.onToken = onToken
	c.loginMu.Unlock()
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends a request and decodes a JSON response into out (if non-nil). An
// authenticated request rejected with 401 is retried once after a fresh login.
func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	if !auth {
		return c.doOnce(ctx, method, path, body, out, "")
	}
	sent := c.Token()
	err := c.doOnce(ctx, method, path, body, out, sent)
	if !IsUnauthorized(err) {
		return err
	}
	if lerr := c.relogin(ctx, sent); lerr != nil {
		return err
	}
	return c.doOnce(ctx, method, path, body, out, c.Token())
}

// relogin replaces a rejected token. Concurrent callers that saw the same
// rejected token share one login.
func (c *Client) relogin(ctx context.Context, rejected string) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if c.username == "" {
		return errors.New("no credentials for re-login")
	}
	if tok := c.Token(); tok != "" && tok != rejected {
		return nil
	}
	tok, err := c.Login(ctx, c.username, c.password)
	if err != nil {
		return err
	}
	if c.onToken != nil {
		c.onToken(tok)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorDetail(blob),
		}
	}

	if out == nil || len(bytes.TrimSpace(blob)) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorDetail pulls "detail" out of a FastAPI error body, falling back to raw text
func errorDetail(blob []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(blob, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if enc, err := json.Marshal(body.Detail); err == nil {
			return string(enc)
		}
	}
	return strings.TrimSpace(string(blob))
}
