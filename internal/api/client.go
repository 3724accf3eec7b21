package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBytes = 10 << 20

// RequestObserver is told about every backend call once it finishes.
type RequestObserver func(operation string, statusCode int, elapsed time.Duration)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observe = o }
}

func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.breakerSettings = st }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client talks to the storefront backend REST API.
type Client struct {
	baseURL         string
	http            *http.Client
	cb              *gobreaker.CircuitBreaker[*response]
	breakerSettings gobreaker.Settings
	observe         RequestObserver
	log             *zap.Logger
}

type response struct {
	statusCode  int
	contentType string
	body        []byte
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: zap.NewNop(),
	}
	c.breakerSettings = gobreaker.Settings{
		Name:        "StorefrontAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breakerSettings.OnStateChange == nil {
		log := c.log
		c.breakerSettings.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		}
	}
	c.cb = gobreaker.NewCircuitBreaker[*response](c.breakerSettings)
	return c
}

type tokenKey struct{}

// WithToken makes calls made with ctx carry a bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey{}).(string); ok {
		return token
	}
	return ""
}

// do performs one request. Transport failures and 5xx answers count against the
// breaker; 4xx answers are returned as *StatusError without tripping it.
// out may be nil when the caller does not need the body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	statusCode := 0
	defer func() {
		if c.observe != nil {
			c.observe(op, statusCode, time.Since(start))
		}
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
	}

	resp, err := c.cb.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := tokenFromContext(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		r := &response{
			statusCode:  httpResp.StatusCode,
			contentType: httpResp.Header.Get("Content-Type"),
			body:        data,
		}
		if r.statusCode >= http.StatusInternalServerError {
			return r, statusError(r)
		}
		return r, nil
	})
	if resp != nil {
		statusCode = resp.statusCode
	}
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return se
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}

	if resp.statusCode < 200 || resp.statusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return decode(resp, out)
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

func decode(r *response, out any) error {
	if !isJSON(r.contentType) {
		return &MalformedResponseError{ContentType: r.contentType, Body: strings.TrimSpace(string(r.body))}
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// statusError reads the server message from a JSON body ({message} or the
// problem-details title) and falls back to the raw text.
func statusError(r *response) *StatusError {
	se := &StatusError{StatusCode: r.statusCode}
	if isJSON(r.contentType) {
		var msg struct {
			Message string `json:"message"`
			Title   string `json:"title"`
		}
		if err := json.Unmarshal(r.body, &msg); err == nil {
			se.Message = msg.Message
			if se.Message == "" {
				se.Message = msg.Title
			}
		}
	} else {
		se.Message = strings.TrimSpace(string(r.body))
	}
	if se.Message == "" {
		se.Message = http.StatusText(r.statusCode)
	}
	return se
}
