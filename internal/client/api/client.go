// Package api is the HTTP transport to the sync server
package api

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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRetries is the maximum number of retry attempts for 429 responses
	MaxRetries = 3

	// DefaultBackoff is the initial backoff when the server sends no Retry-After
	DefaultBackoff = 1 * time.Second
)

// Client talks to one sync server as one user.
// It injects Authorization: Bearer <token> or, against a dev server,
// X-Debug-Sub, plus a fresh X-Correlation-ID per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	debugSub   string

	// Backoff overrides DefaultBackoff
	Backoff time.Duration
}

// New creates a client. Exactly one of token or debugSub should be set.
func New(baseURL, token, debugSub string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		debugSub:   debugSub,
		Backoff:    DefaultBackoff,
	}
}

type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

// do sends one JSON request and decodes a 2xx JSON response into out (if non-nil).
// 429s are retried; other non-2xx statuses come back as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	correlationID := uuid.New().String()
	logger := log.Ctx(ctx).With().
		Str("method", method).
		Str("path", path).
		Str("correlationId", correlationID).
		Logger()

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, path, body, headers, correlationID, &logger)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait, err := c.rateLimitWait(resp, attempt, &logger)
			if err != nil {
				return err
			}
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return decodeResponse(resp, out)
	}
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, headers map[string]string, correlationID string, logger *zerolog.Logger) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Correlation-ID", correlationID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.debugSub != "" {
		req.Header.Set("X-Debug-Sub", c.debugSub)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug().Err(err).Msg("HTTP request failed")
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("HTTP request completed")
	return resp, nil
}

func (c *Client) rateLimitWait(resp *http.Response, attempt int, logger *zerolog.Logger) (time.Duration, error) {
	resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	if attempt >= MaxRetries {
		logger.Warn().Msg("Rate limited - max retries exceeded")
		return 0, ErrRateLimited{RetryAfter: int(retryAfter.Seconds())}
	}

	if retryAfter == 0 {
		retryAfter = c.Backoff * time.Duration(1<<attempt)
	}

	logger.Warn().
		Dur("retryAfter", retryAfter).
		Int("retryCount", attempt).
		Str("rateLimitRemaining", resp.Header.Get("X-RateLimit-Remaining")).
		Msg("Rate limited - backing off")
	return retryAfter, nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	se := &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		se.Message = eb.Error
		se.CorrelationID = eb.CorrelationID
	}
	return se
}

// parseRetryAfter parses the Retry-After header
// Supports both integer seconds and HTTP-date format
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

// statusIs reports whether err is a StatusError with the given code
func statusIs(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}
