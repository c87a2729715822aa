// Package dns resolves the TXT records that email authentication policies
// are published in.
//
// A Client sends every query to several independent providers at once and
// keeps the first well-formed answer. Providers speak one of the formats in
// the registry (see Format): the JSON DNS-over-HTTPS dialect used by the big
// public resolvers, RFC 8484 wire-format DNS-over-HTTPS, classic DNS over UDP,
// or the host's own resolver.
//
//	client, err := dns.NewClient(dns.Config{Timeout: 5 * time.Second})
//	if err != nil {
//	    // Handle error
//	}
//	res, err := client.ResolveTXT(ctx, "_dmarc.example.com", 0)
//
// DKIM keys live under selector names that cannot be enumerated, so
// DiscoverDKIMSelectors probes a list of common selectors concurrently and
// collects every one that publishes a DKIM key.
package dns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DNS errors.
var (
	// ErrDNSNotFound indicates the name does not exist or has no TXT records.
	ErrDNSNotFound = errors.New("dns: record not found")

	// ErrDNSTimeout indicates a query did not complete before its deadline.
	ErrDNSTimeout = errors.New("dns: query timed out")

	// ErrDNSServFail indicates the provider answered SERVFAIL.
	ErrDNSServFail = errors.New("dns: server failure")

	// ErrDNSRefused indicates the provider refused the query.
	ErrDNSRefused = errors.New("dns: query refused")

	// ErrBadResponse indicates a provider returned a response that could not
	// be understood: a non-200 HTTP status, an undecodable body, etc.
	ErrBadResponse = errors.New("dns: malformed provider response")

	// ErrResolutionFailed indicates every provider failed for a query.
	// The concrete error is a *ResolutionError.
	ErrResolutionFailed = errors.New("dns: resolution failed")

	// ErrNoProviders indicates a Client was configured without providers.
	ErrNoProviders = errors.New("dns: no providers configured")
)

// ResolutionError is returned when all providers failed to answer a query.
// It records the last error seen from each provider.
type ResolutionError struct {
	// Name is the queried name.
	Name string

	// Errors maps provider names to the error that provider returned.
	Errors map[string]error
}

func (e *ResolutionError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "dns: resolution failed for %s", e.Name)
	for i, name := range names {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", name, e.Errors[name])
	}
	return b.String()
}

// Is reports whether target is ErrResolutionFailed.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// Unwrap returns the per-provider errors.
func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}

// IsNotFound returns true if err indicates the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDNSNotFound)
}

// IsTimeout returns true if err indicates a query timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrDNSTimeout)
}

// IsServFail returns true if err indicates a server failure.
func IsServFail(err error) bool {
	return errors.Is(err, ErrDNSServFail)
}

// IsTemporary returns true if err is likely to succeed on a later attempt.
func IsTemporary(err error) bool {
	return IsTimeout(err) || IsServFail(err)
}

// Answer is one resolved TXT record.
type Answer struct {
	// Name is the owner name of the record, without trailing dot.
	Name string `json:"name"`

	// RecordType is the record type mnemonic, e.g. "TXT".
	RecordType string `json:"recordType"`

	// TTL is the record time-to-live in seconds.
	TTL uint32 `json:"ttl"`

	// Data is the record text with presentation quoting removed and
	// multiple character-strings joined.
	Data string `json:"data"`

	// ProviderUsed names the provider that returned the record.
	ProviderUsed string `json:"providerUsed"`
}

// QueryResult is the outcome of one TXT query for a protocol.
type QueryResult struct {
	Found     bool     `json:"found"`
	Records   []Answer `json:"records"`
	QueryName string   `json:"queryName"`

	// Selector is set for DKIM results.
	Selector string `json:"selector,omitempty"`

	// Error describes why resolution failed. Empty when the query was
	// answered, even if the answer had no records.
	Error string `json:"error,omitempty"`
}

// Texts returns the Data of every record.
func (r QueryResult) Texts() []string {
	texts := make([]string, len(r.Records))
	for i, a := range r.Records {
		texts[i] = a.Data
	}
	return texts
}

// Filter returns a copy of r holding only the records for which keep returns
// true. Found is recomputed.
func (r QueryResult) Filter(keep func(Answer) bool) QueryResult {
	var records []Answer
	for _, a := range r.Records {
		if keep(a) {
			records = append(records, a)
		}
	}
	r.Records = records
	r.Found = len(records) > 0
	return r
}

// Failed builds the QueryResult reported for a query that could not be
// resolved.
func Failed(name string, err error) QueryResult {
	return QueryResult{QueryName: name, Error: err.Error()}
}

// Resolver resolves TXT records.
//
// ResolveTXT returns a QueryResult with Found == false and a nil error when
// the name exists without TXT records or does not exist. A non-nil error
// means the query could not be answered; the returned QueryResult then has
// Error set.
//
// A timeout <= 0 selects the resolver's default.
type Resolver interface {
	ResolveTXT(ctx context.Context, name string, timeout time.Duration) (QueryResult, error)
}
