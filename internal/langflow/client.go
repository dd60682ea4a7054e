// Package langflow is the HTTP client for the Langflow run API. Agentic
// flows can run for minutes, so the client carries long timeouts and a
// bounded retry policy for transient failures.
package langflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

const (
	// DefaultRequestTimeout is the total time budget for one run call.
	DefaultRequestTimeout = 300 * time.Second
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of extra attempts after the first.
	DefaultMaxRetries = 2
	// errorBodyLimit caps how much of an error response body is kept.
	errorBodyLimit = 4096
)

// runRequest is the fixed-shape payload for the Langflow run endpoint.
type runRequest struct {
	InputType  string `json:"input_type"`
	OutputType string `json:"output_type"`
	InputValue string `json:"input_value"`
	SessionID  string `json:"session_id"`
}

// Client talks to a single flow's run endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client

	// after is the backoff timer, injectable for tests.
	after func(time.Duration) <-chan time.Time
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	Flow           *models.Flow
	RequestTimeout time.Duration       // defaults to DefaultRequestTimeout
	ConnectTimeout time.Duration       // defaults to DefaultConnectTimeout
	MaxRetries     int                 // defaults to DefaultMaxRetries
	HTTPClient     *http.Client                         // test injection
	After          func(time.Duration) <-chan time.Time // test injection; defaults to time.After
}

// NewClient creates a Client for one flow configuration.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.Flow == nil {
		return nil, fmt.Errorf("langflow: client: flow is required")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	after := opts.After
	if after == nil {
		after = time.After
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		dialer := &net.Dialer{Timeout: connectTimeout}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		}
	}

	return &Client{
		endpoint:   opts.Flow.Endpoint(),
		apiKey:     opts.Flow.APIKey,
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: httpClient,
		after:      after,
	}, nil
}

// Run executes one logical flow call. Transient failures (5xx, timeout,
// connection errors) are retried with exponential backoff up to maxRetries
// extra attempts; 4xx responses fail immediately. After exhausting retries
// the last observed error is returned.
func (c *Client) Run(ctx context.Context, message, sessionID string) (map[string]interface{}, error) {
	body, err := json.Marshal(runRequest{
		InputType:  "chat",
		OutputType: "chat",
		InputValue: message,
		SessionID:  sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("langflow: marshal payload: %w", err)
	}

	log.Printf("langflow: run [session=%s len=%d]", sessionID, len(message))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, err := c.post(ctx, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			// Client error: not transient, don't retry.
			return nil, err
		}

		if attempt < c.maxRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			log.Printf("langflow: attempt %d/%d failed (%v), retrying in %s",
				attempt+1, c.maxRetries+1, err, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.after(wait):
			}
		}
	}

	return nil, lastErr
}

// post performs a single HTTP attempt and classifies the outcome.
func (c *Client) post(ctx context.Context, body []byte) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("langflow: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return nil, &TimeoutError{Timeout: c.timeout}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Timeout: c.timeout}
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return data, nil
}

// SendMessage runs the flow and extracts the answer text. A 2xx response
// that yields no extractable text returns "" without error.
func (c *Client) SendMessage(ctx context.Context, message, sessionID string) (string, error) {
	data, err := c.Run(ctx, message, sessionID)
	if err != nil {
		return "", err
	}
	return ExtractMessage(data), nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
