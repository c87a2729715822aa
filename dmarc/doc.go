// Package dmarc parses and validates Domain-based Message Authentication,
// Reporting, and Conformance (DMARC) policy records per RFC 7489.
//
// A DMARC policy is published as a TXT record under "_dmarc.<domain>". It
// tells receivers what to do with mail whose From domain fails SPF and DKIM
// alignment, and where to send aggregate (rua) and failure (ruf) reports.
//
// ParseRecord never fails: it returns a Record whose Errors list violations
// of RFC 7489 and whose Warnings list deviations from good practice.
//
//	r := dmarc.ParseRecord("v=DMARC1; p=reject; rua=mailto:dmarc@example.com")
//	if !r.Valid {
//	    // r.Errors explains why
//	}
//
// Lookup fetches the record, falling back to the organizational domain
// (determined using the Public Suffix List) when the exact domain has none:
//
//	res, err := dmarc.Lookup(ctx, resolver, "mail.example.co.uk", 0)
//
// # References
//
//   - RFC 7489: Domain-based Message Authentication, Reporting, and Conformance (DMARC)
package dmarc
