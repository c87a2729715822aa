// Package spf parses and validates Sender Policy Framework (SPF) records
// according to RFC 7208.
//
// SPF allows domain owners to publish a policy as a DNS TXT record describing
// which hosts are authorized to send email with the domain in the MAIL FROM
// command, and how to handle messages from unauthorized hosts.
//
// This package provides:
//   - Record parsing of all mechanisms and modifiers, collecting every
//     syntax problem instead of stopping at the first
//   - DNS lookup budget accounting (RFC 7208 Section 4.6.4)
//   - Lookup of the SPF records published by a domain
//
// Basic Usage:
//
//	res, err := spf.Lookup(ctx, resolver, "example.com", 0)
//	if err != nil {
//	    // Handle resolution failure
//	}
//	for _, txt := range res.Texts() {
//	    r := spf.ParseRecord(txt)
//	    fmt.Println(r.FinalQualifier, r.DNSLookups, r.Errors)
//	}
//
// References:
//   - RFC 7208: Sender Policy Framework (SPF)
package spf
