package dns

import (
	"context"
	"errors"
	"fmt"
	"net"

	mdns "github.com/miekg/dns"
)

// StdResolver is a Provider backed by the standard library net package,
// i.e. whatever resolver the host is configured with. The standard library
// does not expose TTLs, so answers carry a TTL of 0.
type StdResolver struct {
	name     string
	resolver *net.Resolver
}

// NewStdResolver creates a provider using net.DefaultResolver.
func NewStdResolver(name string) *StdResolver {
	if name == "" {
		name = "system"
	}
	return &StdResolver{
		name:     name,
		resolver: net.DefaultResolver,
	}
}

func (r *StdResolver) Name() string { return r.name }

// LookupTXT retrieves TXT records using the standard library.
func (r *StdResolver) LookupTXT(ctx context.Context, name string) ([]Answer, error) {
	name = trimDot(name)

	records, err := r.resolver.LookupTXT(ctx, name)
	if err != nil {
		return nil, convertError(err)
	}

	answers := make([]Answer, 0, len(records))
	for _, txt := range records {
		answers = append(answers, Answer{
			Name:         name,
			RecordType:   mdns.TypeToString[mdns.TypeTXT],
			Data:         txt,
			ProviderUsed: r.name,
		})
	}
	return answers, nil
}

// convertError converts standard library DNS errors to package errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return ErrDNSNotFound
		}
		if dnsErr.IsTimeout {
			return ErrDNSTimeout
		}
		if dnsErr.IsTemporary {
			return ErrDNSServFail
		}
	}

	return fmt.Errorf("dns lookup failed: %w", err)
}
