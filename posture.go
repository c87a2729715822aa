// Posture analyzes the email authentication posture of a domain.
//
// It resolves the DMARC, SPF and DKIM records a domain publishes, validates
// them against their RFCs, scores them and turns what it finds into a
// prioritized remediation plan.
//
// # Checking a domain
//
//	checker, err := posture.New(posture.Config{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	data, err := checker.CheckEmailSecurity(ctx, "example.com")
//	if err != nil {
//	    // Only an invalid domain fails; DNS problems are reported per protocol.
//	    log.Fatal(err)
//	}
//
//	report := posture.CalculateEmailSecurityScore(data)
//	fmt.Println(report.TotalScore, report.Grade, report.RiskLevel)
//
//	for _, item := range posture.GenerateActionPlan(report, 5) {
//	    fmt.Println(item.Priority, item.Title)
//	}
//
// # DNS
//
// TXT lookups race several DNS-over-HTTPS providers and use the first
// answer (see package dns). Supply Config.Providers to change them, or
// Config.Resolver to replace resolution entirely, e.g. with dns.MockResolver
// in tests:
//
//	checker, _ := posture.New(posture.Config{
//	    Resolver: dns.MockResolver{TXT: map[string][]string{
//	        "example.com.": {"v=spf1 -all"},
//	    }},
//	})
//
// # Scoring
//
// DMARC counts for up to 40 points, SPF and DKIM for up to 30 each. The
// total maps to a grade (A at 85 and above, F below 50) and a risk level.
// See package score for the exact rules.
package posture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"
	"golang.org/x/net/idna"

	"github.com/synqronlabs/posture/dmarc"
	"github.com/synqronlabs/posture/dns"
	"github.com/synqronlabs/posture/spf"
)

var (
	// ErrInvalidDomain is returned for input that is not a domain name.
	ErrInvalidDomain = errors.New("posture: invalid domain")
)

// Config contains configuration for a Checker.
type Config struct {
	// Resolver answers TXT queries. Default is a dns.Client racing Providers.
	Resolver dns.Resolver

	// Providers are the DNS endpoints of the default resolver.
	// Default is dns.DefaultEndpoints.
	Providers []dns.Endpoint

	// Timeout is the deadline of each DNS query. Default is 5 seconds.
	Timeout time.Duration

	// Selectors are the DKIM selectors probed. Default is dns.DefaultSelectors.
	Selectors []string

	// MaxProbes bounds concurrent DKIM selector probes.
	// Default is one per selector.
	MaxProbes int

	// HTTPClient is used by the DNS-over-HTTPS providers.
	HTTPClient *http.Client

	// Logger receives lookup failures. Default discards.
	Logger *slog.Logger

	// Metrics records DNS provider queries of the default resolver.
	Metrics *dns.Metrics
}

// Checker looks up the email authentication records of domains.
// It is safe for concurrent use.
type Checker struct {
	resolver  dns.Resolver
	timeout   time.Duration
	selectors []string
	maxProbes int
	logger    *slog.Logger
}

// New creates a Checker.
func New(config Config) (*Checker, error) {
	if config.Timeout <= 0 {
		config.Timeout = dns.DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	resolver := config.Resolver
	if resolver == nil {
		client, err := dns.NewClient(dns.Config{
			Providers:  config.Providers,
			Timeout:    config.Timeout,
			HTTPClient: config.HTTPClient,
			Logger:     config.Logger,
			Metrics:    config.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("posture: creating resolver: %w", err)
		}
		resolver = client
	}

	return &Checker{
		resolver:  resolver,
		timeout:   config.Timeout,
		selectors: config.Selectors,
		maxProbes: config.MaxProbes,
		logger:    config.Logger,
	}, nil
}

// SecurityData holds the records found for a domain.
type SecurityData struct {
	// ID identifies the analysis request.
	ID        string          `json:"id"`
	Domain    string          `json:"domain"`
	Timestamp time.Time       `json:"timestamp"`
	DMARC     dns.QueryResult `json:"dmarc"`
	SPF       dns.QueryResult `json:"spf"`
	// DKIM holds one result per selector that published a key.
	DKIM []dns.QueryResult `json:"dkim"`
}

// CheckEmailSecurity looks up the DMARC and SPF records of domain and
// probes for DKIM selectors. The three lookups run concurrently and fail
// independently: a failed lookup shows up as a result with Found == false
// and Error set. The only error returned is ErrInvalidDomain.
func (c *Checker) CheckEmailSecurity(ctx context.Context, domain string) (*SecurityData, error) {
	name, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	data := &SecurityData{
		ID:        ulid.Make().String(),
		Domain:    name,
		Timestamp: time.Now().UTC(),
	}
	log := c.logger.With(slog.String("domain", name), slog.String("id", data.ID))
	log.Debug("checking email security")

	var wg conc.WaitGroup
	wg.Go(func() {
		res, err := dmarc.Lookup(ctx, c.resolver, name, c.timeout)
		data.DMARC = c.settle(log, "dmarc", dmarc.RecordName(name), res, err)
	})
	wg.Go(func() {
		res, err := spf.Lookup(ctx, c.resolver, name, c.timeout)
		data.SPF = c.settle(log, "spf", name, res, err)
	})
	wg.Go(func() {
		data.DKIM = dns.DiscoverDKIMSelectors(ctx, c.resolver, name, dns.DiscoverOptions{
			Selectors:     c.selectors,
			MaxConcurrent: c.maxProbes,
			Timeout:       c.timeout,
			Logger:        log,
		})
		if data.DKIM == nil {
			data.DKIM = []dns.QueryResult{}
		}
	})
	wg.Wait()

	log.Debug("email security checked",
		slog.Bool("dmarc", data.DMARC.Found),
		slog.Bool("spf", data.SPF.Found),
		slog.Int("dkim_selectors", len(data.DKIM)))
	return data, nil
}

// settle turns a lookup error into a failed result.
func (c *Checker) settle(log *slog.Logger, protocol, name string, res dns.QueryResult, err error) dns.QueryResult {
	if err == nil {
		return res
	}
	log.Warn("lookup failed",
		slog.String("protocol", protocol),
		slog.Bool("temporary", dns.IsTemporary(err)),
		slog.Any("error", err))
	if res.Error == "" {
		res = dns.Failed(name, err)
	}
	return res
}

// NormalizeDomain validates domain and returns it as a lower-case A-label
// name without trailing dot. Internationalized names are converted with
// IDNA.
func NormalizeDomain(domain string) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidDomain)
	}

	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidDomain, domain, err)
	}
	ascii = strings.ToLower(ascii)

	if !dns.IsHostname(ascii) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return ascii, nil
}
