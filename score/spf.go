package score

import (
	"fmt"
	"slices"

	"github.com/synqronlabs/posture/dns"
	"github.com/synqronlabs/posture/spf"
)

// SPF scores the result of an SPF lookup.
//
//	10 for a record, plus
//	10 -all / 7 ~all / 3 ?all or no all / 0 +all, plus
//	 3 for at most 8 DNS lookups (1 for at most 10), plus
//	 2 when the record is valid, plus
//	 5 when exactly one SPF record is published
//
// The qualifier band comes from the all mechanism only; a record without
// all leaves unlisted hosts neutral and scores like ?all. More than one SPF
// record scores 0. A record ending in +all authorizes
// every host and gets neither the validity nor the single-record points.
func SPF(res dns.QueryResult) ProtocolScore {
	s := newScore(MaxSPF)

	switch {
	case !res.Found && res.Error != "":
		s.issue("SPF lookup failed: " + res.Error)
		s.recommend("Publish an SPF record for " + res.QueryName)
		return s.finish()
	case !res.Found:
		s.issue("No SPF record found")
		s.recommend("Publish an SPF record listing your senders and ending in -all")
		return s.finish()
	case len(res.Records) > 1:
		s.issue(fmt.Sprintf("Multiple SPF records found (%d); RFC 7208 permits only one", len(res.Records)))
		s.recommend("Merge all SPF records into a single v=spf1 record")
		return s.finish()
	}

	r := spf.ParseRecord(res.Records[0].Data)
	s.Details = r
	s.Score = 10

	for _, e := range r.Errors {
		s.issue("SPF record error: " + e)
	}

	switch r.FinalQualifier {
	case "-":
		s.Score += 10
	case "~":
		s.Score += 7
		s.recommend("Tighten ~all to -all once every sender is listed")
	case "?":
		s.Score += 3
		switch {
		case hasMechanism(r, "all"):
			s.issue("SPF record ends in a neutral policy (?all)")
			s.recommend("End the SPF record with -all")
		case r.Redirect == "":
			s.issue("SPF record has no all mechanism, so unlisted hosts get a neutral result")
		}
	default:
		if r.PermitsAll {
			s.issue("SPF record uses +all, allowing any server to send mail")
			s.recommend("Replace +all with -all")
		}
	}

	switch {
	case r.DNSLookups <= spf.WarnDNSLookups:
		s.Score += 3
	case r.DNSLookups <= spf.MaxDNSLookups:
		s.Score++
		s.recommend(fmt.Sprintf("Reduce SPF DNS lookups (%d of %d used)", r.DNSLookups, spf.MaxDNSLookups))
	}

	if !r.PermitsAll {
		if r.Valid {
			s.Score += 2
		}
		s.Score += 5
	}

	if !hasMechanism(r, "all") && r.Redirect == "" {
		s.recommend("End the SPF record with -all")
	}
	if hasMechanism(r, "ptr") {
		s.recommend("Remove the deprecated ptr mechanism from the SPF record")
	}

	return s.finish()
}

func hasMechanism(r *spf.Record, mechanism string) bool {
	return slices.ContainsFunc(r.Directives, func(d spf.Directive) bool {
		return d.Mechanism == mechanism
	})
}
