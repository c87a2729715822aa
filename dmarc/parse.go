package dmarc

import (
	"net/mail"
	"strconv"
	"strings"

	"github.com/synqronlabs/posture/dns"
)

// IsDMARCRecord reports whether txt looks like a DMARC policy record,
// i.e. starts with "v=DMARC1" (case-insensitive).
func IsDMARCRecord(txt string) bool {
	s := toLower(strings.TrimSpace(txt))
	if !strings.HasPrefix(s, "v") {
		return false
	}
	s = strings.TrimSpace(s[1:])
	if !strings.HasPrefix(s, "=") {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(s[1:]), "dmarc1")
}

// ParseRecord parses a DMARC TXT record string.
//
// Tag names are matched case-insensitively and stored in lower case in
// Record.Tags. ParseRecord always returns a record; problems are reported
// in Errors and Warnings, and Valid is true only when Errors is empty.
func ParseRecord(s string) *Record {
	r := newRecord()

	first := true
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		tag, value, ok := strings.Cut(seg, "=")
		tag = toLower(strings.TrimSpace(tag))
		value = strings.TrimSpace(value)
		if !ok || tag == "" {
			r.errorf("malformed tag %q", seg)
			first = false
			continue
		}

		if _, dup := r.Tags[tag]; dup {
			r.errorf("duplicate tag %q", tag)
			continue
		}
		r.Tags[tag] = value

		if first && tag != "v" {
			r.errorf("v=DMARC1 must be the first tag")
		}
		first = false
	}

	r.parseVersion()
	r.parsePolicies()
	r.parsePercentage()
	r.parseAlignment()
	r.parseReporting()

	r.Valid = len(r.Errors) == 0
	return r
}

func (r *Record) parseVersion() {
	v, ok := r.Tags["v"]
	switch {
	case !ok:
		r.errorf("missing required tag v")
	case v != "DMARC1":
		r.errorf("invalid version %q, must be DMARC1", v)
	default:
		r.Version = v
	}
}

func (r *Record) parsePolicies() {
	if v, ok := r.Tags["p"]; !ok {
		r.errorf("missing required tag p")
	} else if p, valid := parsePolicy(v); !valid {
		r.errorf("invalid policy %q, must be none, quarantine or reject", v)
	} else {
		r.Policy = p
	}

	r.SubdomainPolicy = r.Policy
	if v, ok := r.Tags["sp"]; ok {
		if p, valid := parsePolicy(v); !valid {
			r.errorf("invalid subdomain policy %q, must be none, quarantine or reject", v)
		} else {
			r.SubdomainPolicy = p
		}
	}

	if r.Policy == PolicyNone {
		r.warnf("policy none only monitors; failing mail is still delivered")
	}
}

func (r *Record) parsePercentage() {
	v, ok := r.Tags["pct"]
	if !ok {
		return
	}
	pct, err := strconv.Atoi(v)
	if err != nil || pct < 0 || pct > 100 {
		r.errorf("invalid pct %q, must be an integer between 0 and 100", v)
		r.Percentage = 0
		return
	}
	r.Percentage = pct
	if pct < 100 {
		r.warnf("policy applies to only %d%% of messages", pct)
	}
}

func (r *Record) parseAlignment() {
	for _, tag := range []string{"adkim", "aspf"} {
		v, ok := r.Tags[tag]
		if !ok {
			continue
		}
		a := Align(toLower(v))
		if a != AlignRelaxed && a != AlignStrict {
			r.errorf("invalid %s %q, must be r or s", tag, v)
			continue
		}
		if tag == "adkim" {
			r.ADKIM = a
		} else {
			r.ASPF = a
		}
	}
}

func (r *Record) parseReporting() {
	if v, ok := r.Tags["rua"]; ok {
		r.AggregateReportAddresses = r.parseURIs("rua", v)
		r.HasAggregateReporting = len(r.AggregateReportAddresses) > 0
	} else {
		r.warnf("no aggregate report address (rua)")
	}

	if v, ok := r.Tags["ruf"]; ok {
		r.FailureReportAddresses = r.parseURIs("ruf", v)
		r.HasForensicReporting = len(r.FailureReportAddresses) > 0
	} else {
		r.warnf("no failure report address (ruf)")
	}

	if v, ok := r.Tags["fo"]; ok {
		opts := strings.Split(v, ":")
		r.FailureReportingOptions = r.FailureReportingOptions[:0]
		for _, o := range opts {
			o = toLower(strings.TrimSpace(o))
			switch o {
			case "0", "1", "d", "s":
				r.FailureReportingOptions = append(r.FailureReportingOptions, o)
			default:
				r.errorf("invalid fo %q, must be 0, 1, d or s", o)
			}
		}
	}

	if v, ok := r.Tags["ri"]; ok {
		ri, err := strconv.Atoi(v)
		if err != nil || ri < 0 {
			r.errorf("invalid ri %q, must be a non-negative integer", v)
		} else {
			r.AggregateReportingInterval = ri
		}
	}

	if v, ok := r.Tags["rf"]; ok {
		r.ReportingFormat = r.ReportingFormat[:0]
		for _, f := range strings.Split(v, ":") {
			f = toLower(strings.TrimSpace(f))
			if f != "afrf" {
				r.warnf("unknown report format %q", f)
			}
			r.ReportingFormat = append(r.ReportingFormat, f)
		}
	}
}

// parseURIs parses a comma-separated list of mailto: report URIs. Invalid
// entries are reported and left out of the result.
func (r *Record) parseURIs(tag, v string) []URI {
	var uris []URI
	for _, raw := range strings.Split(v, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, ok := parseURI(raw)
		if !ok {
			r.errorf("invalid %s address %q, must be mailto: followed by an email address", tag, raw)
			continue
		}
		uris = append(uris, u)
	}
	return uris
}

// parseURI parses "mailto:addr[!size[unit]]".
func parseURI(s string) (URI, bool) {
	if len(s) < len("mailto:") || toLower(s[:len("mailto:")]) != "mailto:" {
		return URI{}, false
	}

	u := URI{Address: s}
	if i := strings.LastIndexByte(s, '!'); i > 0 {
		size := s[i+1:]
		if size == "" {
			return URI{}, false
		}
		if c := toLower(size[len(size)-1:]); strings.Contains("kmgt", c) {
			u.Unit = c
			size = size[:len(size)-1]
		}
		n, err := strconv.ParseUint(size, 10, 64)
		if err != nil {
			return URI{}, false
		}
		u.Address = s[:i]
		u.MaxSize = n
	}

	if !validEmail(u.Address[len("mailto:"):]) {
		return URI{}, false
	}
	return u, true
}

// validEmail checks that s is a bare addr-spec with a hostname domain.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && dns.IsHostname(s[at+1:])
}
