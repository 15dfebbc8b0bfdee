// Package api is the request/response client for the game backend.
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

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samdwyer/mudlink/internal/telemetry"
)

// Config holds request client configuration.
type Config struct {
	BaseURL string
	// Timeout bounds each attempt; 0 waits indefinitely.
	Timeout time.Duration
	// Retries is how many extra attempts a GET gets after a transport error or
	// a 5xx response. Other methods are never retried.
	Retries int
	// RetryInterval is the first backoff interval between GET attempts.
	RetryInterval time.Duration
	// InstanceID is sent with every request so server logs can be correlated.
	InstanceID string
}

// Client is a stateless caller against the backend.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a client for cfg.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 250 * time.Millisecond
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// HTTPError is a non-success response.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Detail, e.Status)
}

// AuthFailure reports whether the response rejected the credentials.
func (e *HTTPError) AuthFailure() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsAuthFailure reports whether err is a 401 or 403 response.
func IsAuthFailure(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.AuthFailure()
}

// Detail returns the human-readable part of err: the server's detail for an
// HTTPError, a generic message for transport failures.
func Detail(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Detail
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Request cancelled or timed out."
	}
	return "Could not reach the server."
}

// Call issues one request. A url.Values body is sent form-encoded, any other
// non-nil body as JSON. A non-empty token is sent as a bearer credential.
// out is left untouched for 204 responses and when nil.
func (c *Client) Call(ctx context.Context, method, endpoint string, body any, token string, out any) error {
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", method, endpoint, err)
	}

	tracer := telemetry.Tracer("api")
	ctx, span := tracer.Start(ctx, "api.call")
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("api.endpoint", endpoint),
	)
	defer span.End()

	attempt := func() (*http.Response, error) {
		resp, err := c.do(ctx, method, endpoint, payload, contentType, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			herr := readError(resp)
			if method != http.MethodGet {
				return nil, backoff.Permanent(herr)
			}
			return nil, herr
		}
		return resp, nil
	}

	var resp *http.Response
	if method == http.MethodGet && c.config.Retries > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.config.RetryInterval
		resp, err = backoff.Retry(ctx, attempt,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(uint(c.config.Retries+1)),
		)
	} else {
		resp, err = attempt()
	}
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		telemetry.Fail(span, err)
		log.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("request failed")
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := readError(resp)
		telemetry.Fail(span, herr)
		log.Debug().Int("status", herr.Status).Str("endpoint", endpoint).Msg("request rejected")
		return herr
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		telemetry.Fail(span, err)
		return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, contentType, token string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.config.InstanceID != "" {
		req.Header.Set("X-Client-Instance", c.config.InstanceID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if method != http.MethodGet {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return resp, nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return payload, "application/json", nil
	}
}

// readError builds an HTTPError from resp and closes its body.
func readError(resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	herr := &HTTPError{Status: resp.StatusCode, Detail: extractDetail(raw)}
	if herr.Detail == "" {
		herr.Detail = fmt.Sprintf("Request failed with status %d.", resp.StatusCode)
	}
	return herr
}

// extractDetail reads the error field of a JSON error body. FastAPI-style
// validation errors carry a list of {msg} objects.
func extractDetail(raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		field, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(field, &s) == nil && s != "" {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(field, &list) == nil {
			msgs := make([]string, 0, len(list))
			for _, item := range list {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return ""
}
