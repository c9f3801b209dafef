// Package backend provides the REST client for the prediction backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/metrics"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/otel"
)

// maxErrorBody bounds how much of a failed response is kept for errors.
const maxErrorBody = 4 << 10

// Client talks to the backend API. Reads and writes use separate HTTP
// clients: reads may be retried, writes never are.
type Client struct {
	baseURL string
	read    *retryablehttp.Client
	write   *retryablehttp.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// New creates a backend client from cfg. m may be nil.
func New(cfg config.BackendConfig, m *metrics.Metrics) *Client {
	log := logrus.WithField("component", "backend")
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		read:    newRetryClient(cfg.Timeout, cfg.ReadRetries, log),
		write:   newRetryClient(cfg.Timeout, 0, log),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		metrics: m,
		log:     log,
	}
}

// newRetryClient creates an HTTP client with retry capabilities. With
// retries == 0 every request is attempted exactly once.
func newRetryClient(timeout time.Duration, retries int, log *logrus.Entry) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = leveledLogger{entry: log}
	// Hand the final response back untouched so status codes can be mapped.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// BaseURL returns the API root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// getJSON issues a GET against the read client and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out interface{}) error {
	return c.do(ctx, c.read, http.MethodGet, endpoint, path, nil, out)
}

// postJSON issues a single POST attempt.
func (c *Client) postJSON(ctx context.Context, endpoint, path string, in, out interface{}) error {
	return c.do(ctx, c.write, http.MethodPost, endpoint, path, in, out)
}

func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, method, endpoint, path string, in, out interface{}) (err error) {
	ctx, span := otel.Tracer().Start(ctx, "backend."+endpoint, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	))
	defer func() {
		otel.RecordError(ctx, err)
		span.End()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		c.metrics.ObserveBackendRequest(endpoint, "error", time.Since(start))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveBackendRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": requestID,
		"elapsed":    time.Since(start),
	}).Debug("Backend request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusToError(method, path, resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response from %s: %w", path, err)
	}
	return nil
}

// errorBody is the shape the backend uses for every failure response.
type errorBody struct {
	Error string `json:"error"`
}

// errorText extracts the "error" field of a failure body, if any.
func errorText(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	return strings.TrimSpace(eb.Error)
}

// statusToError maps a non-2xx response to the typed errors in model.
func statusToError(method, path string, code int, raw []byte) error {
	msg := errorText(raw)
	switch {
	case code == http.StatusNotFound:
		if msg == "" {
			msg = http.StatusText(code)
		}
		return fmt.Errorf("%s %s: %s: %w", method, path, msg, model.ErrNotFound)
	case code == http.StatusForbidden:
		if msg == "" {
			msg = model.DefaultIneligibleReason
		}
		return &model.IneligibleError{Reason: msg}
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "already made a prediction"):
		return fmt.Errorf("%s: %w", msg, model.ErrAlreadyPredicted)
	default:
		return &model.StatusError{Method: method, Path: path, Code: code, Body: string(raw)}
	}
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
