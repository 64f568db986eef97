// Package rest is the JSON-over-HTTPS transport shared by the provider adapters.
// It adds rate limiting, a circuit breaker, tracing and request metrics around
// net/http, and turns non-2xx responses into *APIError values.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20

	// maxRateLimitWait caps how long a throttled request waits before its single retry.
	maxRateLimitWait = 30 * time.Second
)

// Observer receives one call per completed HTTP exchange. Status is 0 when no
// response was received.
type Observer interface {
	ObserveRequest(provider string, status int, elapsed time.Duration)
}

// Config configures a Client.
type Config struct {
	// Provider names the remote service in logs, spans and metrics.
	Provider string
	BaseURL  string

	// Token is sent as "Authorization: Bearer <token>" unless AuthHeader is set,
	// in which case the raw token is sent under that header.
	Token      string
	AuthHeader string

	// RequestsPerSecond limits outgoing requests; zero means 5/s.
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client
	Logger     zerolog.Logger
	Observer   Observer
}

// Client is a small JSON API client for one provider.
type Client struct {
	provider   string
	baseURL    string
	authHeader string
	authValue  string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	tracer     trace.Tracer
	logger     zerolog.Logger
	observer   Observer
	budget     *budget
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a client. BaseURL must be absolute.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base URL is required", cfg.Provider)
	}
	if !strings.HasPrefix(cfg.BaseURL, "https://") && !strings.HasPrefix(cfg.BaseURL, "http://") {
		return nil, fmt.Errorf("%s: base URL must be absolute, got %q", cfg.Provider, cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		provider:  cfg.Provider,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		tracer:    otel.Tracer("github.com/openfroyo/launchpad/pkg/transports/rest"),
		logger:    cfg.Logger.With().Str("component", "rest").Str("provider", cfg.Provider).Logger(),
		observer:  cfg.Observer,
		budget:    &budget{},
		sleep:     sleepContext,
		authValue: "Bearer " + cfg.Token,
	}
	c.authHeader = "Authorization"
	if cfg.AuthHeader != "" {
		c.authHeader = cfg.AuthHeader
		c.authValue = cfg.Token
	}
	if cfg.Token == "" {
		c.authHeader = ""
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Provider,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c, nil
}

// Get issues a GET and decodes the response into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do performs one JSON request. A throttled response is retried once after the
// provider's advertised reset, if that is within maxRateLimitWait.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode %s %s: %w", c.provider, method, path, err)
		}
	}

	ctx, span := c.tracer.Start(ctx, c.provider+" "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("launchpad.provider", c.provider),
		))
	defer span.End()

	body, err := c.exchange(ctx, method, path, payload)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		if wait, ok := apiErr.retryAfter(time.Now()); ok && wait <= maxRateLimitWait {
			c.logger.Warn().Dur("wait", wait).Str("path", path).Msg("rate limited; retrying once")
			if serr := c.sleep(ctx, wait); serr != nil {
				return serr
			}
			body, err = c.exchange(ctx, method, path, payload)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode %s %s: %w", c.provider, method, path, err)
	}
	return nil
}

type exchangeResult struct {
	body []byte
	err  error
}

func (c *Client) exchange(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.budget.wait(ctx, c.sleep); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// The breaker only counts transport errors and 5xx responses. Client errors are
	// carried in the result so they do not trip it.
	v, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.roundTrip(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		if resp.status >= 500 {
			return nil, newAPIError(c.provider, method, path, resp)
		}
		if resp.status < 200 || resp.status >= 300 {
			return exchangeResult{err: newAPIError(c.provider, method, path, resp)}, nil
		}
		return exchangeResult{body: resp.body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", c.provider, err)
		}
		return nil, err
	}
	res := v.(exchangeResult)
	return res.body, res.err
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(0, elapsed)
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return nil, fmt.Errorf("%s %s %s: %w", c.provider, method, path, err)
	}
	defer resp.Body.Close()

	c.observe(resp.StatusCode, elapsed)
	c.budget.update(ParseRateLimit(resp.Header))
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("request completed")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.provider, err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *Client) observe(status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(c.provider, status, elapsed)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
