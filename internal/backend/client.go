// Package backend is the HTTP client for the remote screening backend: auth,
// arm and face inference, and result storage.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTimeout bounds every backend call, including uploads.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Part is one file in a multipart upload.
type Part struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	SessionPath string
}

// Client talks to the backend. A single cookie jar is shared by every call so
// a session cookie set by login is sent with later uploads.
type Client struct {
	baseURL     string
	sessionPath string
	httpClient  *http.Client
	log         zerolog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a backend client.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sessionPath := cfg.SessionPath
	if sessionPath == "" {
		sessionPath = "/api/v1/auth/me"
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		sessionPath: sessionPath,
		httpClient:  &http.Client{Timeout: timeout, Jar: jar},
		log:         log.With().Str("component", "backend").Logger(),
	}, nil
}

// BaseURL returns the backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken installs a bearer token for subsequent calls. An empty token
// clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a JSON success body into out (when non-nil).
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp, body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// errorMessage extracts a human readable message from an error response:
// JSON "detail" (a string or a list of {msg}) or "message", the raw text
// body, or "HTTP <status>".
func errorMessage(resp *http.Response, body []byte) string {
	fallback := fmt.Sprintf("HTTP %d", resp.StatusCode)
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fallback
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return trimmed
	}

	var payload struct {
		Detail  jsoniter.RawMessage `json:"detail"`
		Message string              `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}
			return strings.Join(msgs, "\n")
		}
	}
	if payload.Message != "" {
		return payload.Message
	}
	return trimmed
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// postMultipart uploads files and form fields. Bodies are small stills, so the
// form is built in memory and the request can be retried by the transport.
func (c *Client) postMultipart(ctx context.Context, path string, parts []Part, fields map[string]string, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Field, p.Filename))
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		w, err := writer.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := w.Write(p.Data); err != nil {
			return fmt.Errorf("failed to write form file: %w", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, out)
}
