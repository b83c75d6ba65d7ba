// Package client is the shared HTTP client for the contest hub backend, with
// per-request authorization, rate limiting, retries and metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/auth"
	"github.com/Sternrassler/contesthub-client/pkg/logging"
	"github.com/Sternrassler/contesthub-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for backend requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contesthub_requests_total",
		Help: "Total backend requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contesthub_request_duration_seconds",
		Help:    "Backend request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contesthub_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})
)

// RequestIDHeader carries a per-request id for backend log correlation.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// Client sends every request to the backend.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	auth        auth.HeaderResolver
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend, e.g. "http://localhost:5000"
	BaseURL string

	// UserAgent sent with every request (required)
	UserAgent string

	// Auth resolves the Authorization header per request. Nil means anonymous.
	Auth auth.HeaderResolver

	// Timeout per HTTP attempt
	Timeout time.Duration

	// RateLimit is the local pacing in requests per second; 0 disables it.
	RateLimit int

	// Retry applies to idempotent helpers (Get, GetJSON). Do never retries.
	Retry RetryConfig

	// Redis, when set, shares the backend rate limit budget across processes.
	Redis *redis.Client

	// HTTPClient overrides the transport (tests, custom TLS).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Auth:      auth.Anonymous(),
		Timeout:   30 * time.Second,
		RateLimit: 10,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %d)", cfg.RateLimit)
	}

	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = NoRetry()
	}

	if cfg.Auth == nil {
		cfg.Auth = auth.Anonymous()
	}

	logger := logging.NewLogger("http-client")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		auth:       cfg.Auth,
		config:     cfg,
		logger:     logger,
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return c, nil
}

// Do performs exactly one HTTP attempt with rate limiting, authorization and
// error classification. Responses with status >= 400 are returned as
// *APIError with the body consumed and closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Shared backend budget
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// Redis trouble must not take the client down with it.
			c.logger.Warn().Err(err).Msg("Rate limit check failed, continuing")
		} else if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, ErrRateLimited
		}
	}

	// Step 2: Local pacing
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	// Step 3: Headers
	if err := c.applyHeaders(req); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("request_id", req.Header.Get(RequestIDHeader)).
		Msg("Executing backend request")

	// Step 4: Send
	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := Classify(err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Str("error_class", string(class)).Msg("HTTP request failed")
		if class == ErrorClassCancelled {
			return nil, err
		}
		return nil, &APIError{
			Method:     req.Method,
			Path:       endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "transport failure",
			Err:        err,
		}
	}

	// Step 5: Record the backend budget
	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 6: Classify failures
	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Backend request error")

		return nil, &APIError{
			Method:     req.Method,
			Path:       endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    errorMessage(resp.Status, body),
			Body:       body,
		}
	}

	return resp, nil
}

func (c *Client) applyHeaders(req *http.Request) error {
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	value, ok, err := c.auth.AuthorizationHeader(req.Context())
	if err != nil {
		return fmt.Errorf("resolve authorization: %w", err)
	}
	if ok {
		req.Header.Set(auth.HeaderName, value)
	} else {
		req.Header.Del(auth.HeaderName)
	}
	return nil
}

// errorMessage prefers the backend's {"message": "..."} over the status line.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return status
}

// URL resolves path (and optional query) against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// NewRequest builds a request against the backend.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Get performs a GET with the configured retry policy.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	var resp *http.Response
	err := Retry(ctx, c.config.Retry, func(int) error {
		req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		resp, err = c.Do(req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetJSON performs a retried GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

// PostJSON sends in as JSON and decodes the response into out (if non-nil).
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON sends in as JSON and decodes the response into out (if non-nil).
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	req, err := c.NewRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeBody(resp, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.NewRequest(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

// FormFile is one file part of a multipart upload.
type FormFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// PostForm sends a multipart/form-data body. Fields are written in the order
// given; files follow the fields.
func (c *Client) PostForm(ctx context.Context, path string, fields [][2]string, files []FormFile, out any) error {
	return c.sendForm(ctx, http.MethodPost, path, fields, files, out)
}

// PutForm is PostForm with PUT.
func (c *Client) PutForm(ctx context.Context, path string, fields [][2]string, files []FormFile, out any) error {
	return c.sendForm(ctx, http.MethodPut, path, fields, files, out)
}

func (c *Client) sendForm(ctx context.Context, method, path string, fields [][2]string, files []FormFile, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write form field %q: %w", f[0], err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return fmt.Errorf("create form file %q: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("copy form file %q: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.NewRequest(ctx, method, path, nil, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}
