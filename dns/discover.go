package dns

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// DefaultSelectors are the DKIM selectors probed during discovery. They cover
// the defaults of the common mailbox providers and sending services.
var DefaultSelectors = []string{
	"default",
	"google",
	"selector1",
	"selector2",
	"k1",
	"k2",
	"s1",
	"s2",
	"mail",
	"dkim",
	"smtp",
	"mandrill",
	"mxvault",
	"everlytickey1",
	"zendesk1",
	"sig1",
}

// DiscoverOptions tunes DiscoverDKIMSelectors.
type DiscoverOptions struct {
	// Selectors to probe. Default is DefaultSelectors.
	Selectors []string

	// MaxConcurrent bounds the number of probes in flight.
	// Default is one per selector.
	MaxConcurrent int

	// Timeout is passed to each probe's ResolveTXT.
	Timeout time.Duration

	// Logger receives dropped probes at debug level. Default discards.
	Logger *slog.Logger
}

// DKIMRecordName returns the name a DKIM key for selector is published at.
func DKIMRecordName(selector, domain string) string {
	return selector + "._domainkey." + trimDot(domain)
}

// IsDKIMRecord reports whether txt looks like a DKIM key record.
func IsDKIMRecord(txt string) bool {
	return strings.Contains(strings.ToLower(txt), "v=dkim1")
}

// DiscoverDKIMSelectors probes every selector below domain concurrently and
// returns a result for each selector that publishes a record containing
// v=DKIM1. Only those records are kept in each result.
//
// Probes that fail or find nothing are dropped; they never fail discovery as
// a whole. The order of the returned results is unspecified.
func DiscoverDKIMSelectors(ctx context.Context, r Resolver, domain string, opts DiscoverOptions) []QueryResult {
	selectors := opts.Selectors
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = len(selectors)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := pool.NewWithResults[*QueryResult]().WithMaxGoroutines(limit)
	for _, selector := range selectors {
		p.Go(func() *QueryResult {
			name := DKIMRecordName(selector, domain)
			res, err := r.ResolveTXT(ctx, name, opts.Timeout)
			if err != nil {
				logger.Debug("dkim selector probe failed",
					slog.String("selector", selector),
					slog.Any("error", err))
				return nil
			}

			res = res.Filter(func(a Answer) bool { return IsDKIMRecord(a.Data) })
			if !res.Found {
				return nil
			}
			res.Selector = selector
			return &res
		})
	}

	var found []QueryResult
	for _, res := range p.Wait() {
		if res != nil {
			found = append(found, *res)
		}
	}
	return found
}
