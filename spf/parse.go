package spf

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/synqronlabs/posture/dns"
)

const (
	// MaxDNSLookups is the RFC 7208 limit on DNS-querying terms.
	MaxDNSLookups = 10

	// WarnDNSLookups is the lookup count above which a record is considered
	// close to the limit.
	WarnDNSLookups = 8
)

// Record is a parsed SPF DNS record.
//
// An example record for example.com:
//
//	v=spf1 +mx a:colo.example.com/28 -all
type Record struct {
	// Tags maps "v" and each lower-cased modifier name to its raw value.
	Tags map[string]string `json:"tags"`

	// Version is "spf1" when the record starts with v=spf1.
	Version string `json:"version"`

	// Directives are evaluated in order until a match is found.
	Directives []Directive `json:"directives"`

	// Redirect specifies another domain to check if no directives match.
	// This is the "redirect=" modifier.
	Redirect string `json:"redirect,omitempty"`

	// Explanation specifies a domain to query for an explanation string
	// when the result is "fail". This is the "exp=" modifier.
	Explanation string `json:"explanation,omitempty"`

	// Other contains other modifiers that are not redirect or exp.
	Other []Modifier `json:"other,omitempty"`

	// DNSLookups counts the terms that cause DNS lookups: a, mx, include,
	// exists and redirect.
	DNSLookups int `json:"dnsLookups"`

	// FinalQualifier is the qualifier of the all mechanism terminating
	// evaluation, "+" when it has none. Without all it is "?", the neutral
	// result of a record that matches nothing (RFC 7208 Section 4.7).
	FinalQualifier string `json:"finalQualifier"`

	// HasStrictPolicy is true when FinalQualifier is "-".
	HasStrictPolicy bool `json:"hasStrictPolicy"`

	// PermitsAll is true when the record's all is +all, authorizing every host.
	PermitsAll bool `json:"permitsAll"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Valid    bool     `json:"isValid"`
}

// String returns the SPF record as a DNS TXT record string.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString("v=")
	b.WriteString(r.Version)

	for _, d := range r.Directives {
		b.WriteByte(' ')
		b.WriteString(d.String())
	}

	if r.Redirect != "" {
		b.WriteString(" redirect=")
		b.WriteString(r.Redirect)
	}

	if r.Explanation != "" {
		b.WriteString(" exp=")
		b.WriteString(r.Explanation)
	}

	for _, m := range r.Other {
		b.WriteByte(' ')
		b.WriteString(m.Key)
		b.WriteByte('=')
		b.WriteString(m.Value)
	}

	return b.String()
}

func (r *Record) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Record) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Directive consists of a mechanism that describes how to check if an IP matches,
// an optional qualifier indicating the policy for a match, and optional
// parameters specific to the mechanism.
type Directive struct {
	// Qualifier sets the result if this directive matches.
	// "" and "+" mean "pass", "-" means "fail", "?" means "neutral", "~" means "softfail".
	Qualifier string `json:"qualifier,omitempty"`

	// Mechanism is one of: "all", "include", "a", "mx", "ptr", "ip4", "ip6", "exists".
	Mechanism string `json:"mechanism"`

	// DomainSpec is used for include, a, mx, ptr, exists mechanisms.
	// Always in lower-case when parsed using ParseRecord.
	DomainSpec string `json:"domainSpec,omitempty"`

	// IP is the parsed IP address for ip4 and ip6 mechanisms.
	IP net.IP `json:"ip,omitempty"`

	// IP4CIDRLen is the CIDR prefix length for IPv4 (0-32).
	// nil means the default (32 for ip4, or depends on mechanism).
	IP4CIDRLen *int `json:"ip4CidrLen,omitempty"`

	// IP6CIDRLen is the CIDR prefix length for IPv6 (0-128).
	// nil means the default (128 for ip6, or depends on mechanism).
	IP6CIDRLen *int `json:"ip6CidrLen,omitempty"`
}

// String returns the directive in string form.
func (d Directive) String() string {
	var b strings.Builder
	b.WriteString(d.Qualifier)
	b.WriteString(d.Mechanism)

	if d.DomainSpec != "" {
		b.WriteByte(':')
		b.WriteString(d.DomainSpec)
	} else if d.IP != nil {
		b.WriteByte(':')
		b.WriteString(d.IP.String())
	}

	if d.IP4CIDRLen != nil {
		fmt.Fprintf(&b, "/%d", *d.IP4CIDRLen)
	}

	if d.IP6CIDRLen != nil {
		if d.Mechanism != "ip6" {
			b.WriteByte('/')
		}
		fmt.Fprintf(&b, "/%d", *d.IP6CIDRLen)
	}

	return b.String()
}

// EffectiveQualifier returns the qualifier, "+" when none was written.
func (d Directive) EffectiveQualifier() string {
	if d.Qualifier == "" {
		return "+"
	}
	return d.Qualifier
}

// Modifier provides additional information for a policy.
// "redirect" and "exp" are not represented as Modifier but explicitly in Record.
type Modifier struct {
	Key   string `json:"key"` // Key is case-insensitive.
	Value string `json:"value"`
}

// toLower lower-cases ASCII A-Z without affecting other bytes.
func toLower(s string) string {
	r := []byte(s)
	for i, c := range r {
		if c >= 'A' && c <= 'Z' {
			r[i] = c + 0x20
		}
	}
	return string(r)
}

// IsSPFRecord reports whether txt is an SPF version 1 record: its first
// term is "v=spf1" (case-insensitive).
func IsSPFRecord(txt string) bool {
	fields := strings.Fields(txt)
	return len(fields) > 0 && toLower(fields[0]) == "v=spf1"
}

// ParseRecord parses an SPF DNS TXT record.
//
// ParseRecord always returns a record. Syntax violations are collected in
// Errors and questionable but legal constructs in Warnings; Valid is true
// only when Errors is empty.
func ParseRecord(s string) *Record {
	r := &Record{
		Tags:     map[string]string{},
		Errors:   []string{},
		Warnings: []string{},
	}

	terms := strings.Fields(s)
	if len(terms) > 0 && toLower(terms[0]) == "v=spf1" {
		r.Version = "spf1"
		r.Tags["v"] = "spf1"
		terms = terms[1:]
	} else {
		r.errorf("record must start with v=spf1")
	}

	var allSeen bool
	for _, term := range terms {
		if isModifier(term) {
			r.parseModifier(term)
			continue
		}
		if allSeen {
			r.warnf("mechanism %q after all is never evaluated", term)
		}
		d, ok := r.parseDirective(term)
		if !ok {
			continue
		}
		if d.Mechanism == "all" {
			allSeen = true
		}
		r.Directives = append(r.Directives, d)
	}

	r.finish(allSeen)
	r.Valid = len(r.Errors) == 0
	return r
}

// isModifier reports whether term is name=value rather than a mechanism.
// A mechanism's value follows ':' or '/', so an '=' before either of those
// marks a modifier.
func isModifier(term string) bool {
	i := strings.IndexAny(term, ":/=")
	return i > 0 && term[i] == '='
}

func (r *Record) parseModifier(term string) {
	name, value, _ := strings.Cut(term, "=")
	name = toLower(name)

	if !validModifierName(name) {
		r.errorf("invalid modifier name %q", name)
		return
	}
	if _, dup := r.Tags[name]; dup {
		r.errorf("duplicate %s modifier", name)
		return
	}
	r.Tags[name] = value

	switch name {
	case "redirect":
		r.Redirect = toLower(value)
		r.DNSLookups++
		r.checkDomain("redirect", r.Redirect)
	case "exp":
		r.Explanation = toLower(value)
		r.checkDomain("exp", r.Explanation)
	default:
		r.Other = append(r.Other, Modifier{Key: name, Value: value})
	}
}

// validModifierName checks name = ALPHA *( ALPHA / DIGIT / "-" / "_" / "." ).
func validModifierName(name string) bool {
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	return true
}

func (r *Record) parseDirective(term string) (Directive, bool) {
	var d Directive
	rest := term
	if strings.ContainsAny(rest[:1], "+-~?") {
		d.Qualifier = rest[:1]
		rest = rest[1:]
	}

	i := strings.IndexAny(rest, ":/")
	if i < 0 {
		i = len(rest)
	}
	d.Mechanism = toLower(rest[:i])
	rest = rest[i:]

	var value, cidr string
	if strings.HasPrefix(rest, ":") {
		value = rest[1:]
		if d.Mechanism != "ip6" {
			if j := strings.IndexByte(value, '/'); j >= 0 {
				value, cidr = value[:j], value[j:]
			}
		}
	} else {
		cidr = rest
	}

	ok := true
	switch d.Mechanism {
	case "all":
		if value != "" || cidr != "" {
			r.errorf("all takes no arguments in %q", term)
			ok = false
		}

	case "include", "exists":
		if value == "" {
			r.errorf("%s requires a domain in %q", d.Mechanism, term)
			ok = false
			break
		}
		d.DomainSpec = toLower(value)
		ok = r.checkDomain(d.Mechanism, d.DomainSpec)
		r.DNSLookups++

	case "a", "mx":
		if strings.HasPrefix(rest, ":") && value == "" {
			r.errorf("%s has an empty domain in %q", d.Mechanism, term)
			ok = false
		}
		if value != "" {
			d.DomainSpec = toLower(value)
			ok = r.checkDomain(d.Mechanism, d.DomainSpec) && ok
		}
		ok = r.parseDualCIDR(&d, cidr, term) && ok
		r.DNSLookups++

	case "ptr":
		if value != "" {
			d.DomainSpec = toLower(value)
			ok = r.checkDomain("ptr", d.DomainSpec)
		}
		if cidr != "" {
			r.errorf("ptr takes no prefix length in %q", term)
			ok = false
		}
		r.warnf("ptr mechanism is deprecated (RFC 7208 Section 5.5)")

	case "ip4":
		ok = r.parseIP(&d, value, cidr, term, false)

	case "ip6":
		ok = r.parseIP(&d, value, "", term, true)

	default:
		r.errorf("unknown mechanism %q", d.Mechanism)
		ok = false
	}

	return d, ok
}

// checkDomain validates a domain-spec. Specs carrying macros cannot be
// checked without expansion and are accepted.
func (r *Record) checkDomain(term, domain string) bool {
	if domain == "" {
		r.errorf("%s requires a domain", term)
		return false
	}
	if strings.Contains(domain, "%") {
		return true
	}
	if !dns.IsHostname(domain) {
		r.errorf("invalid domain %q in %s", domain, term)
		return false
	}
	return true
}

// parseDualCIDR parses "/n", "//m" or "/n//m" for the a and mx mechanisms.
func (r *Record) parseDualCIDR(d *Directive, cidr, term string) bool {
	if cidr == "" {
		return true
	}
	var v4, v6 string
	switch {
	case strings.HasPrefix(cidr, "//"):
		v6 = cidr[2:]
	default:
		v4, v6, _ = strings.Cut(cidr[1:], "//")
	}

	ok := true
	if v4 != "" || !strings.HasPrefix(cidr, "//") {
		n, valid := parsePrefix(v4, 32)
		if !valid {
			r.errorf("invalid ip4 prefix length in %q", term)
			ok = false
		} else {
			d.IP4CIDRLen = &n
		}
	}
	if strings.Contains(cidr, "//") {
		n, valid := parsePrefix(v6, 128)
		if !valid {
			r.errorf("invalid ip6 prefix length in %q", term)
			ok = false
		} else {
			d.IP6CIDRLen = &n
		}
	}
	return ok
}

func (r *Record) parseIP(d *Directive, value, cidr, term string, v6 bool) bool {
	if v6 {
		if j := strings.IndexByte(value, '/'); j >= 0 {
			value, cidr = value[:j], value[j:]
		}
	}
	if value == "" {
		r.errorf("%s requires an address in %q", d.Mechanism, term)
		return false
	}

	ip := net.ParseIP(value)
	isV6 := strings.Contains(value, ":")
	if ip == nil || isV6 != v6 {
		r.errorf("invalid %s address %q", d.Mechanism, value)
		return false
	}
	if v6 {
		d.IP = ip
	} else {
		d.IP = ip.To4()
	}

	if cidr == "" {
		return true
	}
	limit := 32
	if v6 {
		limit = 128
	}
	n, valid := parsePrefix(cidr[1:], limit)
	if !valid {
		r.errorf("invalid %s prefix length in %q, must be 0 to %d", d.Mechanism, term, limit)
		return false
	}
	if v6 {
		d.IP6CIDRLen = &n
	} else {
		d.IP4CIDRLen = &n
	}
	return true
}

// parsePrefix parses a decimal prefix length in [0, limit] without leading
// zeros (RFC 7208 Section 5.6).
func parsePrefix(s string, limit int) (int, bool) {
	if s == "" || len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > limit {
		return 0, false
	}
	return n, true
}

// finish computes derived fields and record-level checks.
func (r *Record) finish(allSeen bool) {
	r.FinalQualifier = "?"
	for _, d := range r.Directives {
		if d.Mechanism == "all" {
			r.FinalQualifier = d.EffectiveQualifier()
			r.PermitsAll = r.FinalQualifier == "+"
			break
		}
	}
	r.HasStrictPolicy = r.FinalQualifier == "-"

	switch {
	case r.DNSLookups > MaxDNSLookups:
		r.errorf("too many DNS lookups: %d (maximum %d)", r.DNSLookups, MaxDNSLookups)
	case r.DNSLookups > WarnDNSLookups:
		r.warnf("DNS lookup count %d is close to the limit of %d", r.DNSLookups, MaxDNSLookups)
	}

	if !allSeen {
		if r.Redirect == "" {
			r.warnf("record does not end with an all mechanism")
		}
	} else if r.Redirect != "" {
		r.warnf("redirect is ignored because the record contains all")
	}

	if r.PermitsAll {
		r.warnf("+all authorizes every host to send mail")
	}
}
