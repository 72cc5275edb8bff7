// Package rest implements the winery ports over the REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"winery/internal/core"
	"winery/internal/listing"
	"winery/internal/log"
	"winery/internal/winery"
)

// Client talks to the winery REST API rooted at baseURL (".../api/v1").
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *log.Logger
}

// authTransport attaches the bearer token carried by the request context.
type authTransport struct {
	next http.RoundTripper
}

func (t authTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	token := winery.TokenFrom(r.Context())
	if token == "" || r.Header.Get("Authorization") != "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return t.next.RoundTrip(r)
}

// NewClient creates a client for baseURL. A nil transport uses http.DefaultTransport.
func NewClient(baseURL string, timeout time.Duration, transport http.RoundTripper, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported API base URL scheme %q", u.Scheme)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: authTransport{next: transport},
		},
		logger: logger.WithComponent(log.ComponentAPI),
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request and returns the raw response body on 2xx.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case rawBody:
		reader = strings.NewReader(string(b))
		contentType = "text/plain"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "API request failed",
			log.FieldMethod, method, log.FieldPath, path, log.FieldError, err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	c.logger.DebugContext(ctx, "API request completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if err := statusError(resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

// rawBody is sent as-is instead of JSON encoded.
type rawBody string

// statusError maps a response status onto the console's error taxonomy.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return core.ErrUnauthorized
	case status == http.StatusForbidden:
		return core.ErrForbidden
	}
	return &core.APIError{Status: status, Message: errorMessage(body)}
}

// errorMessage extracts "message" from an error body, or joins the values of a
// field -> message validation map.
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	var fields map[string]string
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for field, msg := range fields {
			parts = append(parts, field+": "+msg)
		}
		slices.Sort(parts)
		return strings.Join(parts, "; ")
	}
	return ""
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(data, out, path)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return decode(data, out, path)
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	err := c.getJSON(ctx, path, query, &out)
	return out, err
}

func send[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var out T
	err := c.sendJSON(ctx, method, path, body, &out)
	return out, err
}

func decode(data []byte, out any, path string) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// getPage fetches a paged list. Malformed bodies are logged and answered with
// an empty page instead of an error.
func getPage[T any](ctx context.Context, c *Client, path string, req listing.Request, query url.Values) (listing.Page[T], error) {
	data, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return listing.Page[T]{}, err
	}
	page, err := listing.Decode[T](data, req)
	if errors.Is(err, listing.ErrMalformed) {
		c.logger.WarnContext(ctx, "Malformed page response treated as empty",
			log.FieldPath, path, log.FieldError, err)
		return page, nil
	}
	return page, err
}
