package spf

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/synqronlabs/posture/dns"
)

func hasMessage(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		checkFunc func(t *testing.T, r *Record)
	}{
		{
			name:      "simple pass all",
			input:     "v=spf1 +all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if len(r.Directives) != 1 {
					t.Errorf("expected 1 directive, got %d", len(r.Directives))
				}
				if r.Directives[0].Mechanism != "all" {
					t.Errorf("expected mechanism 'all', got %q", r.Directives[0].Mechanism)
				}
				if r.FinalQualifier != "+" {
					t.Errorf("expected final qualifier '+', got %q", r.FinalQualifier)
				}
				if !r.PermitsAll {
					t.Error("expected PermitsAll")
				}
			},
		},
		{
			name:      "default qualifier",
			input:     "v=spf1 all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.Directives[0].Qualifier != "" {
					t.Errorf("expected empty qualifier, got %q", r.Directives[0].Qualifier)
				}
				if r.FinalQualifier != "+" || !r.PermitsAll {
					t.Errorf("FinalQualifier = %q, PermitsAll = %v", r.FinalQualifier, r.PermitsAll)
				}
			},
		},
		{
			name:      "fail all",
			input:     "v=spf1 -all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.FinalQualifier != "-" || !r.HasStrictPolicy {
					t.Errorf("FinalQualifier = %q, HasStrictPolicy = %v", r.FinalQualifier, r.HasStrictPolicy)
				}
			},
		},
		{
			name:      "softfail all",
			input:     "v=spf1 ~all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.FinalQualifier != "~" || r.HasStrictPolicy {
					t.Errorf("FinalQualifier = %q, HasStrictPolicy = %v", r.FinalQualifier, r.HasStrictPolicy)
				}
			},
		},
		{
			name:      "case insensitive version and mechanisms",
			input:     "V=SPF1 MX Include:_spf.Example.com ?ALL",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.Directives[1].Mechanism != "include" || r.Directives[1].DomainSpec != "_spf.example.com" {
					t.Errorf("unexpected directive %+v", r.Directives[1])
				}
				if r.FinalQualifier != "?" {
					t.Errorf("FinalQualifier = %q, want ?", r.FinalQualifier)
				}
			},
		},
		{
			name:      "ip4 and ip6",
			input:     "v=spf1 ip4:192.0.2.0/24 ip4:198.51.100.7 ip6:2001:db8::/32 -all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if *r.Directives[0].IP4CIDRLen != 24 {
					t.Errorf("ip4 prefix = %d, want 24", *r.Directives[0].IP4CIDRLen)
				}
				if r.Directives[1].IP4CIDRLen != nil {
					t.Error("expected no prefix for bare ip4")
				}
				if *r.Directives[2].IP6CIDRLen != 32 {
					t.Errorf("ip6 prefix = %d, want 32", *r.Directives[2].IP6CIDRLen)
				}
				if r.DNSLookups != 0 {
					t.Errorf("DNSLookups = %d, want 0", r.DNSLookups)
				}
			},
		},
		{
			name:      "a and mx with dual cidr",
			input:     "v=spf1 a/24 mx:mail.example.com/28//64 a//96 -all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				d := r.Directives
				if *d[0].IP4CIDRLen != 24 || d[0].IP6CIDRLen != nil {
					t.Errorf("a/24 parsed as %+v", d[0])
				}
				if d[1].DomainSpec != "mail.example.com" || *d[1].IP4CIDRLen != 28 || *d[1].IP6CIDRLen != 64 {
					t.Errorf("mx parsed as %+v", d[1])
				}
				if d[2].IP4CIDRLen != nil || *d[2].IP6CIDRLen != 96 {
					t.Errorf("a//96 parsed as %+v", d[2])
				}
				if r.DNSLookups != 3 {
					t.Errorf("DNSLookups = %d, want 3", r.DNSLookups)
				}
			},
		},
		{
			name:      "modifiers",
			input:     "v=spf1 mx redirect=_spf.example.com exp=explain.example.com x-custom=1",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.Redirect != "_spf.example.com" {
					t.Errorf("Redirect = %q", r.Redirect)
				}
				if r.Explanation != "explain.example.com" {
					t.Errorf("Explanation = %q", r.Explanation)
				}
				if len(r.Other) != 1 || r.Other[0].Key != "x-custom" {
					t.Errorf("Other = %+v", r.Other)
				}
				if r.DNSLookups != 2 {
					t.Errorf("DNSLookups = %d, want 2 (mx + redirect)", r.DNSLookups)
				}
				if hasMessage(r.Warnings, "all mechanism") {
					t.Error("redirect should satisfy the missing all check")
				}
			},
		},
		{
			name:      "macro domain spec",
			input:     "v=spf1 exists:%{i}.spf.example.com -all",
			wantValid: true,
		},
		{
			name:      "ptr is deprecated but valid",
			input:     "v=spf1 ptr -all",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if !hasMessage(r.Warnings, "deprecated") {
					t.Errorf("Warnings = %q, want deprecation", r.Warnings)
				}
				if r.DNSLookups != 0 {
					t.Errorf("DNSLookups = %d, want 0", r.DNSLookups)
				}
			},
		},
		{
			name:      "no all",
			input:     "v=spf1 include:example.com",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if !hasMessage(r.Warnings, "does not end with an all mechanism") {
					t.Errorf("Warnings = %q", r.Warnings)
				}
				if r.FinalQualifier != "?" || r.PermitsAll || r.HasStrictPolicy {
					t.Errorf("FinalQualifier = %q, PermitsAll = %v, HasStrictPolicy = %v", r.FinalQualifier, r.PermitsAll, r.HasStrictPolicy)
				}
			},
		},
		{
			name:      "no all with fail qualified mechanism",
			input:     "v=spf1 -ip4:192.0.2.1",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.FinalQualifier != "?" || r.HasStrictPolicy {
					t.Errorf("FinalQualifier = %q, HasStrictPolicy = %v, want ? and false", r.FinalQualifier, r.HasStrictPolicy)
				}
			},
		},
		{
			name:      "qualifier of all not of trailing mechanism",
			input:     "v=spf1 ~all -mx",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.FinalQualifier != "~" || r.HasStrictPolicy {
					t.Errorf("FinalQualifier = %q, HasStrictPolicy = %v, want ~ and false", r.FinalQualifier, r.HasStrictPolicy)
				}
			},
		},
		{
			name:      "version only",
			input:     "v=spf1",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if r.FinalQualifier != "?" {
					t.Errorf("FinalQualifier = %q, want ?", r.FinalQualifier)
				}
			},
		},
		{
			name:      "mechanism after all",
			input:     "v=spf1 -all mx",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if !hasMessage(r.Warnings, "after all") {
					t.Errorf("Warnings = %q", r.Warnings)
				}
			},
		},
		{
			name:      "exp after all is fine",
			input:     "v=spf1 -all exp=explain.example.com",
			wantValid: true,
			checkFunc: func(t *testing.T, r *Record) {
				if len(r.Warnings) != 0 {
					t.Errorf("Warnings = %q, want none", r.Warnings)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRecord(tt.input)
			if r.Valid != tt.wantValid {
				t.Fatalf("ParseRecord(%q) Valid = %v, want %v (errors %q)", tt.input, r.Valid, tt.wantValid, r.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, r)
			}
		})
	}
}

func TestParseRecordErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{"empty", "", "must start with v=spf1"},
		{"wrong version", "v=spf2 -all", "must start with v=spf1"},
		{"unknown mechanism", "v=spf1 foo -all", "unknown mechanism"},
		{"all with value", "v=spf1 all:example.com", "all takes no arguments"},
		{"include without domain", "v=spf1 include -all", "include requires a domain"},
		{"include bad domain", "v=spf1 include:bad_domain -all", "invalid domain"},
		{"a empty domain", "v=spf1 a: -all", "empty domain"},
		{"invalid ip4", "v=spf1 ip4:300.1.1.1 -all", "invalid ip4 address"},
		{"ip6 in ip4", "v=spf1 ip4:2001:db8::1 -all", "invalid ip4 address"},
		{"ip4 in ip6", "v=spf1 ip6:192.0.2.1 -all", "invalid ip6 address"},
		{"ip4 prefix too long", "v=spf1 ip4:192.0.2.0/33 -all", "invalid ip4 prefix length"},
		{"ip6 prefix too long", "v=spf1 ip6:2001:db8::/129 -all", "invalid ip6 prefix length"},
		{"leading zero prefix", "v=spf1 ip4:192.0.2.0/024 -all", "invalid ip4 prefix length"},
		{"a bad prefix", "v=spf1 a/40 -all", "invalid ip4 prefix length"},
		{"duplicate redirect", "v=spf1 redirect=a.example.com redirect=b.example.com", "duplicate redirect"},
		{"duplicate exp", "v=spf1 exp=a.example.com exp=b.example.com -all", "duplicate exp"},
		{"bad modifier name", "v=spf1 1x=y -all", "invalid modifier name"},
		{
			"too many lookups",
			"v=spf1 include:a.example.com include:b.example.com include:c.example.com include:d.example.com a mx exists:e.example.com include:f.example.com include:g.example.com include:h.example.com redirect=i.example.com",
			"too many DNS lookups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRecord(tt.input)
			if r.Valid {
				t.Fatalf("ParseRecord(%q) Valid = true, want false", tt.input)
			}
			if !hasMessage(r.Errors, tt.err) {
				t.Errorf("ParseRecord(%q) Errors = %q, want one containing %q", tt.input, r.Errors, tt.err)
			}
		})
	}
}

func TestDNSLookupBudget(t *testing.T) {
	tests := []struct {
		includes  int
		wantValid bool
		wantWarn  bool
	}{
		{8, true, false},
		{9, true, true},
		{10, true, true},
		{11, false, false},
	}

	for _, tt := range tests {
		var b strings.Builder
		b.WriteString("v=spf1")
		for i := 0; i < tt.includes; i++ {
			b.WriteString(" include:s" + string(rune('a'+i)) + ".example.com")
		}
		b.WriteString(" -all")

		r := ParseRecord(b.String())
		if r.DNSLookups != tt.includes {
			t.Errorf("%d includes: DNSLookups = %d", tt.includes, r.DNSLookups)
		}
		if r.Valid != tt.wantValid {
			t.Errorf("%d includes: Valid = %v, want %v", tt.includes, r.Valid, tt.wantValid)
		}
		if got := hasMessage(r.Warnings, "close to the limit"); got != tt.wantWarn {
			t.Errorf("%d includes: lookup warning = %v, want %v", tt.includes, got, tt.wantWarn)
		}
	}
}

func TestRecordString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v=spf1 -all", "v=spf1 -all"},
		{"v=spf1 mx a:Example.com/24 ~all", "v=spf1 mx a:example.com/24 ~all"},
		{"v=spf1 ip4:192.0.2.1 ip6:2001:db8::/32 redirect=_spf.example.com", "v=spf1 ip4:192.0.2.1 ip6:2001:db8::/32 redirect=_spf.example.com"},
		{"v=spf1 a//64 -all", "v=spf1 a//64 -all"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRecord(tt.input).String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	const txt = "v=spf1 include:_spf.google.com ip4:bad ptr foo ~all"
	if a, b := ParseRecord(txt), ParseRecord(txt); !reflect.DeepEqual(a, b) {
		t.Errorf("ParseRecord() not deterministic:\n%#v\n%#v", a, b)
	}
}

func TestIsSPFRecord(t *testing.T) {
	tests := []struct {
		txt  string
		want bool
	}{
		{"v=spf1 -all", true},
		{"V=SPF1", true},
		{"  v=spf1   mx", true},
		{"v=spf10 -all", false},
		{"v=DMARC1; p=none", false},
		{"spf1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSPFRecord(tt.txt); got != tt.want {
			t.Errorf("IsSPFRecord(%q) = %v, want %v", tt.txt, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	resolver := dns.MockResolver{
		TXT: map[string][]string{
			"example.com.": {"google-site-verification=abc", "v=spf1 -all"},
			"double.com.":  {"v=spf1 -all", "v=spf1 ~all"},
		},
		Fail: []string{"broken.com."},
	}
	ctx := context.Background()

	res, err := Lookup(ctx, resolver, "example.com", 0)
	if err != nil || !res.Found || len(res.Records) != 1 || res.Records[0].Data != "v=spf1 -all" {
		t.Errorf("Lookup(example.com) = %+v, %v", res, err)
	}

	res, err = Lookup(ctx, resolver, "double.com", 0)
	if err != nil || len(res.Records) != 2 {
		t.Errorf("Lookup(double.com) = %+v, %v; want both records", res, err)
	}

	res, err = Lookup(ctx, resolver, "missing.com", 0)
	if err != nil || res.Found {
		t.Errorf("Lookup(missing.com) = %+v, %v", res, err)
	}

	if _, err = Lookup(ctx, resolver, "broken.com", 0); err == nil {
		t.Error("Lookup(broken.com) expected error")
	}
}
