package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without calling the provider while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyNotReplayable is returned when a request with a body cannot be retried.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	Name string

	// Timeout bounds a single HTTP attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 2
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential retry backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	Breaker BreakerConfig

	// Transport overrides the HTTP round tripper, e.g. an oauth2.Transport.
	Transport http.RoundTripper

	// Registry, if set, records the client's health under Name.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns defaults suited to push delivery.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         DefaultBreakerConfig(name),
		Logger:          zerolog.Nop(),
	}
}

// Client is an HTTP client with a circuit breaker and bounded retries.
// 5xx responses, 429 responses and network errors are retried; everything
// else is returned to the caller as-is.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	cfg        ClientConfig
}

// NewClient creates a resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig(cfg.Name)
	}

	c := &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		breaker: newBreaker[*http.Response](cfg.Breaker, cfg.Logger), //nolint:bodyclose // type param, not response
		cfg:     cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do executes req through the breaker, retrying transient failures. When
// retries are exhausted on a 5xx or 429 the last response is returned with a
// nil error so callers can read the provider's error body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response

	operation := func() error {
		attempt, err := c.attemptRequest(ctx, req)
		if err != nil {
			return err
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}

		if resp != nil {
			discard(last)
			last = resp
		}
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && last != nil {
			c.recordFailure(err)
			return last, nil
		}
		discard(last)
		c.recordFailure(err)
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}

	c.recordSuccess()
	return last, nil
}

func (c *Client) attemptRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrBodyNotReplayable, err))
		}
		attempt.Body = body
	}
	return attempt, nil
}

func (c *Client) recordSuccess() {
	if c.cfg.Registry != nil {
		c.cfg.Registry.RecordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.cfg.Registry != nil {
		c.cfg.Registry.RecordFailure(c.name, err)
	}
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// StatusError is a retryable HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retryable status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts returns the current circuit breaker counts.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
