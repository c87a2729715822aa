package dns

import (
	"context"
	"slices"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// MockResolver is a Resolver used for testing and for offline runs.
// Set DNS records in the fields, which map FQDNs (with trailing dot) to values.
type MockResolver struct {
	TXT map[string][]string

	// Fail contains names that fail to resolve as if every provider had
	// answered SERVFAIL, e.g. "_dmarc.example.com.".
	Fail []string

	// Delay is applied before answering, honouring context and timeout.
	Delay time.Duration
}

var _ Resolver = MockResolver{}

// mockProvider is the provider name recorded in answers.
const mockProvider = "mock"

// ensureFQDN ensures the name ends with a dot and is lower case.
func ensureFQDN(name string) string {
	return mdns.Fqdn(strings.ToLower(name))
}

// ResolveTXT returns the configured TXT records for name.
func (r MockResolver) ResolveTXT(ctx context.Context, name string, timeout time.Duration) (QueryResult, error) {
	fqdn := ensureFQDN(name)
	qname := trimDot(fqdn)

	if r.Delay > 0 {
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			err := &ResolutionError{Name: qname, Errors: map[string]error{mockProvider: contextError(ctx, ctx.Err())}}
			return Failed(qname, err), err
		}
	}

	if err := ctx.Err(); err != nil {
		rerr := &ResolutionError{Name: qname, Errors: map[string]error{mockProvider: err}}
		return Failed(qname, rerr), rerr
	}

	if slices.Contains(r.Fail, fqdn) {
		err := &ResolutionError{Name: qname, Errors: map[string]error{mockProvider: ErrDNSServFail}}
		return Failed(qname, err), err
	}

	res := QueryResult{QueryName: qname}
	for key, values := range r.TXT {
		if ensureFQDN(key) != fqdn {
			continue
		}
		for _, v := range values {
			res.Records = append(res.Records, Answer{
				Name:         qname,
				RecordType:   "TXT",
				TTL:          300,
				Data:         v,
				ProviderUsed: mockProvider,
			})
		}
	}
	res.Found = len(res.Records) > 0
	return res, nil
}
