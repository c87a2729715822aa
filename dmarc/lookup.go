package dmarc

import (
	"context"
	"strings"
	"time"

	"github.com/synqronlabs/posture/dns"
)

// RecordName returns the DNS name holding the DMARC policy of domain.
func RecordName(domain string) string {
	return "_dmarc." + strings.TrimSuffix(strings.ToLower(domain), ".")
}

// Lookup looks up the DMARC TXT records for the given domain.
//
// It first queries "_dmarc.<domain>". If no DMARC record is found there, it
// falls back to the organizational domain (determined using the Public
// Suffix List) and queries "_dmarc.<orgdomain>". The returned QueryName
// reports where the record was found.
//
// Only answers that look like DMARC records are kept. More than one
// remaining record means the domain publishes no usable policy; callers
// decide how to treat that (RFC 7489 Section 6.6.3).
func Lookup(ctx context.Context, resolver dns.Resolver, domain string, timeout time.Duration) (dns.QueryResult, error) {
	res, err := lookupRecord(ctx, resolver, domain, timeout)
	if err != nil || res.Found {
		return res, err
	}

	// No record at the exact domain, try the organizational domain
	orgDomain := OrganizationalDomain(domain)
	if orgDomain == "" || orgDomain == strings.TrimSuffix(strings.ToLower(domain), ".") {
		return res, nil
	}
	return lookupRecord(ctx, resolver, orgDomain, timeout)
}

func lookupRecord(ctx context.Context, resolver dns.Resolver, domain string, timeout time.Duration) (dns.QueryResult, error) {
	res, err := resolver.ResolveTXT(ctx, RecordName(domain), timeout)
	if err != nil {
		return res, err
	}
	return res.Filter(func(a dns.Answer) bool { return IsDMARCRecord(a.Data) }), nil
}
