package dns

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout is the per-provider query deadline.
const DefaultTimeout = 5 * time.Second

// Config contains configuration for a Client.
type Config struct {
	// Providers are queried in parallel for every lookup.
	// Default is DefaultEndpoints.
	Providers []Endpoint

	// Timeout is the deadline for each provider query. Default is 5 seconds.
	Timeout time.Duration

	// HTTPClient is used by the DoH providers. Default is http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives provider failures at debug level. Default discards.
	Logger *slog.Logger

	// Metrics, when set, records every provider query.
	Metrics *Metrics
}

// Client resolves TXT records by racing several providers.
//
// There is no caching and no retrying: a provider that fails is left out of
// the race for that query.
type Client struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

var _ Resolver = (*Client)(nil)

// NewClient creates a Client for the configured endpoints.
func NewClient(config Config) (*Client, error) {
	endpoints := config.Providers
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}

	providers := make([]Provider, 0, len(endpoints))
	for _, ep := range endpoints {
		p, err := NewProvider(ep, config.HTTPClient)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewClientWithProviders(config, providers...)
}

// NewClientWithProviders creates a Client racing the given providers.
// config.Providers and config.HTTPClient are ignored.
func NewClientWithProviders(config Config, providers ...Provider) (*Client, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		providers: providers,
		timeout:   config.Timeout,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}, nil
}

// Timeout returns the per-provider query deadline.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

type outcome struct {
	provider string
	answers  []Answer
	err      error
}

// ResolveTXT queries all providers in parallel and returns the first
// successful answer. The remaining queries are cancelled once a provider
// answers. If every provider fails, the error is a *ResolutionError holding
// each provider's error.
//
// An authoritative "name does not exist" counts as an answer: the result has
// Found == false and the error is nil.
func (c *Client) ResolveTXT(ctx context.Context, name string, timeout time.Duration) (QueryResult, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	name = trimDot(name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so that losing queries never block after we have returned.
	results := make(chan outcome, len(c.providers))
	for _, p := range c.providers {
		go func() {
			qctx, qcancel := context.WithTimeout(ctx, timeout)
			defer qcancel()

			start := time.Now()
			answers, err := p.LookupTXT(qctx, name)
			c.metrics.observe(p.Name(), err, time.Since(start))
			results <- outcome{p.Name(), answers, err}
		}()
	}

	rerr := &ResolutionError{Name: name, Errors: make(map[string]error, len(c.providers))}
	for range c.providers {
		o := <-results
		if o.err == nil || IsNotFound(o.err) {
			cancel()
			return QueryResult{
				Found:     len(o.answers) > 0,
				Records:   o.answers,
				QueryName: name,
			}, nil
		}

		rerr.Errors[o.provider] = o.err
		c.logger.Debug("dns provider failed",
			slog.String("provider", o.provider),
			slog.String("name", name),
			slog.Any("error", o.err))
	}

	return Failed(name, rerr), rerr
}

// DiscoverDKIMSelectors probes DefaultSelectors below domain.
func (c *Client) DiscoverDKIMSelectors(ctx context.Context, domain string) []QueryResult {
	return DiscoverDKIMSelectors(ctx, c, domain, DiscoverOptions{
		Timeout: c.timeout,
		Logger:  c.logger,
	})
}
