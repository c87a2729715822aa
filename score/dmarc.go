package score

import (
	"fmt"
	"strings"

	"github.com/synqronlabs/posture/dmarc"
	"github.com/synqronlabs/posture/dns"
)

// DMARC scores the result of a DMARC lookup.
//
//	15 for a record, plus
//	15 reject / 10 quarantine / 5 none, plus
//	 5 when pct=100, plus
//	 5 for aggregate and failure reporting (3 aggregate only, 2 failure only)
func DMARC(res dns.QueryResult) ProtocolScore {
	s := newScore(MaxDMARC)

	switch {
	case !res.Found && res.Error != "":
		s.issue("DMARC lookup failed: " + res.Error)
		s.recommend("Publish a DMARC record at " + res.QueryName)
		return s.finish()
	case !res.Found:
		s.issue("No DMARC record found")
		s.recommend("Publish a DMARC record at " + res.QueryName + " starting with p=none and a rua address")
		return s.finish()
	case len(res.Records) > 1:
		s.issue(fmt.Sprintf("Multiple DMARC records found (%d); receivers ignore all of them", len(res.Records)))
		s.recommend("Keep exactly one DMARC record at " + res.QueryName)
		return s.finish()
	}

	r := dmarc.ParseRecord(res.Records[0].Data)
	s.Details = r
	s.Score = 15

	for _, e := range r.Errors {
		s.issue("DMARC record error: " + e)
	}

	switch r.Policy {
	case dmarc.PolicyReject:
		s.Score += 15
	case dmarc.PolicyQuarantine:
		s.Score += 10
		s.recommend("Upgrade the DMARC policy from quarantine to reject")
	case dmarc.PolicyNone:
		s.Score += 5
		s.issue("DMARC policy is none, failing mail is still delivered")
		s.recommend("Move the DMARC policy to quarantine, then reject")
	}

	if r.Percentage == 100 {
		s.Score += 5
	} else {
		s.issue(fmt.Sprintf("DMARC policy applies to only %d%% of messages", r.Percentage))
		s.recommend("Raise pct to 100 so the policy covers all mail")
	}

	switch {
	case r.HasAggregateReporting && r.HasForensicReporting:
		s.Score += 5
	case r.HasAggregateReporting:
		s.Score += 3
		s.recommend("Add a ruf address to receive DMARC failure reports")
	case r.HasForensicReporting:
		s.Score += 2
		s.recommend("Add a rua address to receive DMARC aggregate reports")
	default:
		s.recommend("Add rua and ruf addresses to receive DMARC reports")
	}

	domain := strings.TrimPrefix(res.QueryName, "_dmarc.")
	for _, d := range r.ExternalReportDomains(domain) {
		s.recommend(fmt.Sprintf("Confirm %s accepts DMARC reports for %s at %s._report._dmarc.%s", d, domain, domain, d))
	}

	if r.Policy != dmarc.PolicyNone && r.EffectivePolicy(true) == dmarc.PolicyNone {
		s.recommend("Set sp to quarantine or reject to protect subdomains")
	}

	return s.finish()
}
