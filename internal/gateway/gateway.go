// Package gateway sends every backend call with the active credential and
// classifies failures uniformly. It never retries: each call is at-most-once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crewdesk/internal/metrics"
	"crewdesk/internal/model"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CredentialSource yields the active bearer credential. ok is false when no
// identity is active.
type CredentialSource interface {
	Credential() (model.Credential, bool)
}

// TeardownFunc forces a full session teardown. It is called synchronously on
// every authorization failure, before the error is returned.
type TeardownFunc func(ctx context.Context, reason string)

type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials CredentialSource
	Teardown    TeardownFunc
	Limiter     *rate.Limiter
	Metrics     metrics.Recorder
	Logger      *slog.Logger
	UserAgent   string
}

type Client struct {
	base       string
	httpClient *http.Client
	creds      CredentialSource
	teardown   TeardownFunc
	limiter    *rate.Limiter
	metrics    metrics.Recorder
	logger     *slog.Logger
	userAgent  string
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL: %q", opts.BaseURL)
	}
	c := &Client{
		base:       base,
		httpClient: opts.HTTPClient,
		creds:      opts.Credentials,
		teardown:   opts.Teardown,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		userAgent:  opts.UserAgent,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.userAgent == "" {
		c.userAgent = "crewdesk"
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.base }

// Request describes one backend call. Path is relative to the API base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Form   url.Values
	// Anonymous calls never carry the credential (login, register).
	Anonymous bool
}

// Do sends req and decodes a JSON response into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, _, err := c.send(ctx, c.base, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

// Download sends req and returns the raw body and headers.
func (c *Client) Download(ctx context.Context, req Request) ([]byte, http.Header, error) {
	return c.send(ctx, c.base, req)
}

// Health probes the service root: the API base URL without its /api/vN suffix.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	root := serviceRoot(c.base)
	body, _, err := c.send(ctx, root, Request{Method: http.MethodGet, Path: "/", Anonymous: true})
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			out["body"] = strings.TrimSpace(string(body))
		}
	}
	return out, nil
}

func serviceRoot(base string) string {
	i := strings.LastIndex(base, "/api/v")
	if i < 0 {
		return base
	}
	rest := base[i+len("/api/v"):]
	if rest == "" || strings.Trim(rest, "0123456789") != "" {
		return base
	}
	return base[:i]
}

func (c *Client) send(ctx context.Context, base string, req Request) ([]byte, http.Header, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, c.fail(ctx, req, start, &Error{Kind: KindNetwork, Message: msgNetwork, Err: err})
		}
	}

	httpReq, err := c.newHTTPRequest(ctx, base, req)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, c.fail(ctx, req, start, &Error{Kind: KindNetwork, Message: msgNetwork, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, c.fail(ctx, req, start, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: msgNetwork, Err: err})
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.record(req.Method, "ok", start)
		return body, resp.Header, nil
	}

	return nil, nil, c.fail(ctx, req, start, classify(resp.StatusCode, body, req.Anonymous))
}

func (c *Client) newHTTPRequest(ctx context.Context, base string, req Request) (*http.Request, error) {
	u := base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	if !req.Anonymous && c.creds != nil {
		if tok, ok := c.creds.Credential(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+string(tok))
		}
	}
	return httpReq, nil
}

// classify maps a non-2xx response to a failure kind. An anonymous call never
// carried a credential, so its 401 is a rejected login rather than an expired
// session and is reported as a domain failure.
func classify(status int, body []byte, anonymous bool) *Error {
	detail := extractDetail(body)
	switch {
	case status == http.StatusUnauthorized && !anonymous:
		msg := detail
		if msg == "" {
			msg = msgSessionExpired
		}
		return &Error{Kind: KindUnauthorized, Status: status, Message: msg}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Message: msgServer}
	default:
		msg := detail
		if msg == "" {
			msg = fmt.Sprintf("Request failed with status code %d", status)
		}
		return &Error{Kind: KindDomain, Status: status, Message: msg}
	}
}

// extractDetail reads a FastAPI-style {"detail": ...} body. A list detail
// (request validation errors) is flattened to its messages.
func extractDetail(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(env.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(env.Detail))
}

func (c *Client) fail(ctx context.Context, req Request, start time.Time, e *Error) error {
	e.Method = req.Method
	e.Path = req.Path
	c.record(req.Method, string(e.Kind), start)

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("kind", string(e.Kind)),
		slog.Int("status", e.Status),
		slog.String("message", e.Message),
	}
	if e.Err != nil && !errors.Is(e.Err, context.Canceled) {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	c.logger.Error("api request failed", attrs...)

	if e.Kind == KindUnauthorized {
		if c.metrics != nil {
			c.metrics.RecordForcedLogout()
		}
		if c.teardown != nil {
			c.teardown(ctx, e.Message)
		}
	}
	return e
}

func (c *Client) record(method, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRequest(method, outcome, time.Since(start))
}
