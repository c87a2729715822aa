package score

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/synqronlabs/posture/dkim"
	"github.com/synqronlabs/posture/dns"
)

type dkimCandidate struct {
	selector string
	record   *dkim.Record
	score    int
}

// DKIM scores the records found by selector discovery and keeps the best
// scoring selector.
//
//	15 for a record, plus
//	10 for a key of 2048 bits or more (5 for 1024, 2 for any key), plus
//	 3 when the record is valid, plus
//	 2 when the hash algorithm is sha256
//
// A revoked key scores 0. Ties go to the alphabetically first selector so
// the result does not depend on discovery order.
func DKIM(results []dns.QueryResult) ProtocolScore {
	s := newScore(MaxDKIM)

	var candidates []dkimCandidate
	for _, res := range results {
		if !res.Found {
			continue
		}
		for _, a := range res.Records {
			r := dkim.ParseRecord(a.Data)
			candidates = append(candidates, dkimCandidate{
				selector: res.Selector,
				record:   r,
				score:    dkimRecordScore(r),
			})
		}
	}

	if len(candidates) == 0 {
		s.issue("No DKIM records found for common selectors")
		s.recommend("Publish a DKIM key and sign outgoing mail with it")
		return s.finish()
	}

	slices.SortStableFunc(candidates, func(a, b dkimCandidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.selector, b.selector)
	})

	best := candidates[0]
	r := best.record
	s.Score = best.score
	s.Selector = best.selector
	s.Details = r

	for _, e := range r.Errors {
		s.issue(fmt.Sprintf("DKIM record error (selector %s): %s", best.selector, e))
	}

	switch {
	case r.IsRevoked:
		s.issue(fmt.Sprintf("DKIM key for selector %s is revoked", best.selector))
		s.recommend("Publish a new DKIM key of at least 2048 bits")
	case r.KeyLength > 0 && r.KeyLength < 1024:
		s.issue(fmt.Sprintf("DKIM key for selector %s is weak (about %d bits)", best.selector, r.KeyLength))
		s.recommend("Rotate to a DKIM key of at least 2048 bits")
	case r.KeyLength > 0 && r.KeyLength < 2048:
		s.recommend(fmt.Sprintf("Upgrade the DKIM key for selector %s to 2048 bits", best.selector))
	}

	if !r.IsRevoked && !r.HashAllowed(dkim.HashSHA256) {
		s.recommend("Allow sha256 in the DKIM key record (h=)")
	}
	if r.IsTestMode {
		s.recommend("Remove the DKIM test mode flag (t=y) once signing is verified")
	}

	return s.finish()
}

func dkimRecordScore(r *dkim.Record) int {
	if r.IsRevoked {
		return 0
	}

	score := 15
	switch {
	case r.KeyLength >= 2048:
		score += 10
	case r.KeyLength >= 1024:
		score += 5
	case r.KeyLength > 0:
		score += 2
	}
	if r.Valid {
		score += 3
	}
	if r.HashAllowed(dkim.HashSHA256) {
		score += 2
	}
	return score
}
