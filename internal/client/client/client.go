package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/obs"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every non-streaming request.
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "studyctl/0.1"
	maxBodyBytes     = 8 << 20
)

// Remote is the request surface the stores and services depend on.
type Remote interface {
	Do(ctx context.Context, method, path string, q url.Values, body, out any) (*Envelope, error)
}

var _ Remote = (*HTTPClient)(nil)

// Envelope is the service's response wrapper.
type Envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       string          `json:"code,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Options tune an HTTPClient. Zero values pick the defaults.
type Options struct {
	Timeout   time.Duration
	RateLimit rate.Limit
	RateBurst int
	Logger    logging.Logger
	Metrics   obs.Recorder
	// Transport overrides the HTTP round tripper (tests).
	Transport http.RoundTripper
}

// HTTPClient talks to the remote service. It is safe for concurrent use.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	log     logging.Logger
	metrics obs.Recorder

	mu    sync.RWMutex
	token string
}

// New builds a client rooted at baseURL (e.g. "http://localhost:8080/api").
func New(baseURL string, opts Options) (*HTTPClient, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limit, burst := opts.RateLimit, opts.RateBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &HTTPClient{
		baseURL: base,
		http:    &http.Client{Timeout: timeout, Jar: jar, Transport: opts.Transport},
		stream:  &http.Client{Jar: jar, Transport: opts.Transport},
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		metrics: obs.OrNop(opts.Metrics),
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("server url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// SetToken replaces the bearer credential; "" removes it.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// Do sends one request. When out is non-nil the envelope's data is decoded
// into it. Every failure is an *APIError except caller cancellation, which
// is returned as ctx.Err().
func (c *HTTPClient) Do(ctx context.Context, method, path string, q url.Values, body, out any) (*Envelope, error) {
	op := opLabel(method, path)

	env, err := c.do(ctx, method, path, q, body, out)
	switch {
	case err == nil:
		c.metrics.RemoteRequest(op, "ok")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		c.metrics.RemoteRequest(op, "canceled")
	default:
		c.metrics.RemoteRequest(op, string(KindOf(err)))
		c.log.Debug(ctx, "remote call failed", "op", op, "err", err)
	}
	return env, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, body, out any) (*Envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: KindRateLimited, Message: "client rate limit exceeded", Err: err}
	}

	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code = env.Code
			apiErr.Message = firstNonEmpty(env.Error, env.Message)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if apiErr.Kind == KindRateLimited {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return &env, apiErr
	}

	if decodeErr != nil {
		return nil, &APIError{Kind: KindTransport, Status: resp.StatusCode, Message: "malformed response envelope", Err: decodeErr}
	}
	if !env.Success {
		return &env, &APIError{Kind: KindServer, Status: resp.StatusCode, Code: env.Code,
			Message: firstNonEmpty(env.Error, env.Message, "request failed")}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, &APIError{Kind: KindTransport, Status: resp.StatusCode, Message: "malformed response data", Err: err}
		}
	}
	return &env, nil
}

// DecodeList decodes list data that is either a bare array or an object
// holding the array under field (e.g. {"notes": [...]}).
func DecodeList(data json.RawMessage, field string, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' || field == "" {
		return json.Unmarshal(trimmed, out)
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	inner, ok := wrapped[field]
	if !ok {
		return fmt.Errorf("list field %q missing", field)
	}
	return json.Unmarshal(inner, out)
}

// DecodeItem decodes single-record data that is either the bare record or
// an object holding it under field (e.g. {"note": {...}}).
func DecodeItem(data json.RawMessage, field string, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("response carries no record")
	}
	if field != "" && trimmed[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		if inner, ok := wrapped[field]; ok {
			return json.Unmarshal(inner, out)
		}
	}
	return json.Unmarshal(trimmed, out)
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// opLabel keeps metric cardinality low: "GET /notes/abc/archive" becomes
// "GET /notes".
func opLabel(method, path string) string {
	seg := strings.Trim(path, "/")
	if first, rest, ok := strings.Cut(seg, "/"); ok && (first == "auth" || first == "focus") {
		next, _, _ := strings.Cut(rest, "/")
		seg = first + "/" + next
	} else {
		seg = first
	}
	return method + " /" + seg
}
