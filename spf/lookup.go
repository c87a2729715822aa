package spf

import (
	"context"
	"time"

	"github.com/synqronlabs/posture/dns"
)

// Lookup fetches the TXT records of domain and keeps those that are SPF
// version 1 records.
//
// More than one remaining record is a permanent error for receivers
// (RFC 7208 Section 4.5); Lookup returns them all so callers can report it.
func Lookup(ctx context.Context, resolver dns.Resolver, domain string, timeout time.Duration) (dns.QueryResult, error) {
	res, err := resolver.ResolveTXT(ctx, domain, timeout)
	if err != nil {
		return res, err
	}
	return res.Filter(func(a dns.Answer) bool { return IsSPFRecord(a.Data) }), nil
}
