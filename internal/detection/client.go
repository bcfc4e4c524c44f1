package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"drowsy/internal/config"
	"drowsy/internal/services"
)

// DefaultBaseURL is the detection service endpoint the demo ships with.
const DefaultBaseURL = "http://localhost:5000/api"

const (
	defaultStartMessage = "Failed to start detection"
	defaultStopMessage  = "Failed to stop detection"
	maxErrorBody        = 4 << 10
)

var (
	// ErrConnectionRefused reports that the detection service could not be reached.
	ErrConnectionRefused = errors.New("detection service unreachable")
	// ErrMalformedStatus reports a status payload that could not be decoded.
	ErrMalformedStatus = errors.New("malformed status response")
)

// RejectedError is returned when the service answers with a non-success status.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("detection service rejected request (%d): %s", e.StatusCode, e.Message)
}

// Status is a single status reading from the service.
type Status struct {
	Status string  `json:"status"`
	Score  float64 `json:"score"`
}

// HTTPDoer describes the HTTP client used by the detection client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the external detection service. It performs no retries.
type Client struct {
	baseURL string
	client  HTTPDoer
	timeout time.Duration
}

// NewClient constructs a client for baseURL. A nil doer uses http.DefaultClient;
// a non-positive timeout disables the per-request deadline.
func NewClient(baseURL string, doer HTTPDoer, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: doer, timeout: timeout}
}

// NewFromConfig builds a client from the [service] section.
func NewFromConfig(cfg *config.Config) *Client {
	if cfg == nil {
		return NewClient(DefaultBaseURL, nil, 0)
	}
	return NewClient(cfg.Service.BaseURL, nil, cfg.RequestTimeout())
}

// BaseURL returns the normalized service endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Start asks the service to begin analysis.
func (c *Client) Start(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/start-detection")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return rejected(resp, defaultStartMessage)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Stop asks the service to cease analysis. Callers treat failures as best effort.
func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/stop-detection")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return rejected(resp, defaultStopMessage)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Status fetches the current reading.
func (c *Client) Status(ctx context.Context) (Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status")
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Status{}, rejected(resp, http.StatusText(resp.StatusCode))
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		// Body reads happen after do returns; tie cancel to body close.
		resp, err := c.send(ctx, method, path)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.send(ctx, method, path)
}

func (c *Client) send(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if parentErr := context.Cause(ctx); parentErr != nil && !errors.Is(parentErr, context.DeadlineExceeded) {
			return nil, parentErr
		}
		return nil, services.Wrap(ErrConnectionRefused, "detection", strings.TrimPrefix(path, "/"), c.baseURL, err)
	}
	return resp, nil
}

func rejected(resp *http.Response, fallback string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := fallback
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && strings.TrimSpace(payload.Error) != "" {
		message = payload.Error
	}
	return &RejectedError{StatusCode: resp.StatusCode, Message: message}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
