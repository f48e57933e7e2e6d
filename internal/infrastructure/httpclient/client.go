package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/resilience"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("httpclient: not found")

// ErrTooLarge is returned when a response body exceeds Options.MaxBodySize.
var ErrTooLarge = errors.New("httpclient: response body too large")

// DefaultMaxBodySize bounds every response read into memory.
const DefaultMaxBodySize = 8 << 20

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: GET %s: status %d", e.URL, e.Status)
}

// Options configures a Client.
type Options struct {
	Name      string
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
	// RateLimit in requests per second; zero means unlimited.
	RateLimit float64
	// MaxBodySize in bytes; zero selects DefaultMaxBodySize.
	MaxBodySize int
}

// DefaultOptions returns options for fetching game modules and entry pages.
func DefaultOptions() Options {
	return Options{
		Name:        "http-external",
		Timeout:     10 * time.Second,
		RetryMax:    3,
		UserAgent:   "kothrunner/1.0",
		MaxBodySize: DefaultMaxBodySize,
	}
}

// Client wraps resty with retries, rate limiting and a circuit breaker.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
}

// New creates a client.
func New(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "http-external"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryMax).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if opts.UserAgent != "" {
		restyClient.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	restyClient.SetResponseBodyLimit(opts.MaxBodySize)
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New(opts.Name, resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: breaker,
	}
}

// Get fetches url and returns the body. Server errors and transport
// failures count against the breaker; 4xx responses do not.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	resp, err := resilience.Call(ctx, c.Breaker, func(ctx context.Context) (*resty.Response, error) {
		resp, err := c.Resty.R().SetContext(ctx).Get(url)
		if errors.Is(err, resty.ErrResponseBodyTooLarge) {
			return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
		}
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, &StatusError{URL: url, Status: resp.StatusCode()}
		}
		return resp, nil
	})
	if err != nil {
		if resilience.IsRejected(err) {
			return nil, fmt.Errorf("%s unavailable: %w", c.Breaker.Name(), err)
		}
		return nil, err
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.IsError():
		return nil, &StatusError{URL: url, Status: resp.StatusCode()}
	}
	return resp.Body(), nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}
