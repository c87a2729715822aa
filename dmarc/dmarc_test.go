package dmarc

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

func TestParseBad(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{"empty", "", "missing required tag v"},
		{"missing version", "p=none", "missing required tag v"},
		{"lowercase version", "v=dmarc1; p=none", "invalid version"},
		{"wrong version", "v=DMARC2; p=none", "invalid version"},
		{"version not first", "p=none; v=DMARC1", "must be the first tag"},
		{"missing policy", "v=DMARC1", "missing required tag p"},
		{"bad policy", "v=DMARC1; p=bogus", "invalid policy"},
		{"bad subdomain policy", "v=DMARC1; p=none; sp=bogus", "invalid subdomain policy"},
		{"pct too large", "v=DMARC1; p=none; pct=101", "invalid pct"},
		{"pct negative", "v=DMARC1; p=none; pct=-1", "invalid pct"},
		{"pct not a number", "v=DMARC1; p=none; pct=all", "invalid pct"},
		{"bad adkim", "v=DMARC1; p=none; adkim=x", "invalid adkim"},
		{"bad aspf", "v=DMARC1; p=none; aspf=relaxed", "invalid aspf"},
		{"rua without mailto", "v=DMARC1; p=none; rua=a@example.com", "invalid rua address"},
		{"rua https", "v=DMARC1; p=none; rua=https://example.com/r", "invalid rua address"},
		{"rua bad email", "v=DMARC1; p=none; rua=mailto:not-an-email", "invalid rua address"},
		{"rua bad domain", "v=DMARC1; p=none; rua=mailto:a@localhost", "invalid rua address"},
		{"ruf bad size", "v=DMARC1; p=none; ruf=mailto:a@example.com!x", "invalid ruf address"},
		{"bad fo", "v=DMARC1; p=none; fo=2", "invalid fo"},
		{"bad ri", "v=DMARC1; p=none; ri=-5", "invalid ri"},
		{"malformed segment", "v=DMARC1; p=none; junk", "malformed tag"},
		{"duplicate tag", "v=DMARC1; p=none; p=reject", "duplicate tag"},
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

func TestParseValid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		warnings []string
	}{
		{
			name:     "minimal",
			input:    "v=DMARC1; p=reject",
			warnings: []string{"rua", "ruf"},
		},
		{
			name:  "full",
			input: "v=DMARC1; p=reject; sp=quarantine; pct=100; rua=mailto:agg@example.com; ruf=mailto:fail@example.com; adkim=s; aspf=r; fo=1:d; ri=3600; rf=afrf",
		},
		{
			name:  "case insensitive tags and values",
			input: "V=DMARC1; P=Reject; RUA=MAILTO:agg@example.com; RUF=mailto:f@example.com",
		},
		{
			name:     "partial rollout",
			input:    "v=DMARC1; p=quarantine; pct=25; rua=mailto:a@example.com; ruf=mailto:a@example.com",
			warnings: []string{"25%"},
		},
		{
			name:  "trailing semicolon and spaces",
			input: "  v = DMARC1 ;p=reject;;rua=mailto:a@example.com; ruf=mailto:a@example.com ;  ",
		},
		{
			name:     "unknown report format",
			input:    "v=DMARC1; p=reject; rua=mailto:a@example.com; ruf=mailto:a@example.com; rf=iodef",
			warnings: []string{"iodef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRecord(tt.input)
			if !r.Valid {
				t.Fatalf("ParseRecord(%q) Errors = %q, want none", tt.input, r.Errors)
			}
			for _, w := range tt.warnings {
				if !hasMessage(r.Warnings, w) {
					t.Errorf("Warnings = %q, want one containing %q", r.Warnings, w)
				}
			}
		})
	}
}

func TestParseRecord(t *testing.T) {
	r := ParseRecord("v=DMARC1; p=reject; sp=none; pct=50; rua=mailto:agg@example.com!10m,mailto:other@example.org; adkim=s; fo=0:s; ri=3600")

	want := Record{
		Tags: map[string]string{
			"v": "DMARC1", "p": "reject", "sp": "none", "pct": "50",
			"rua": "mailto:agg@example.com!10m,mailto:other@example.org",
			"adkim": "s", "fo": "0:s", "ri": "3600",
		},
		Version:         "DMARC1",
		Policy:          PolicyReject,
		SubdomainPolicy: PolicyNone,
		AggregateReportAddresses: []URI{
			{Address: "mailto:agg@example.com", MaxSize: 10, Unit: "m"},
			{Address: "mailto:other@example.org"},
		},
		ADKIM:                      AlignStrict,
		ASPF:                       AlignRelaxed,
		AggregateReportingInterval: 3600,
		FailureReportingOptions:    []string{"0", "s"},
		ReportingFormat:            []string{"afrf"},
		Percentage:                 50,
		HasAggregateReporting:      true,
		Errors:                     []string{},
		Warnings: []string{
			"policy applies to only 50% of messages",
			"no failure report address (ruf)",
		},
		Valid: true,
	}

	if !reflect.DeepEqual(*r, want) {
		t.Errorf("ParseRecord() =\n%#v\nwant\n%#v", *r, want)
	}
}

func TestParseDefaults(t *testing.T) {
	r := ParseRecord("v=DMARC1; p=quarantine")

	if r.SubdomainPolicy != PolicyQuarantine {
		t.Errorf("SubdomainPolicy = %q, want %q", r.SubdomainPolicy, PolicyQuarantine)
	}
	if r.Percentage != 100 {
		t.Errorf("Percentage = %d, want 100", r.Percentage)
	}
	if r.ADKIM != AlignRelaxed || r.ASPF != AlignRelaxed {
		t.Errorf("alignment = %q/%q, want r/r", r.ADKIM, r.ASPF)
	}
	if r.HasAggregateReporting || r.HasForensicReporting {
		t.Error("expected no reporting")
	}
}

func TestParseInvalidPercentage(t *testing.T) {
	r := ParseRecord("v=DMARC1; p=reject; pct=150")
	if r.Percentage != 0 {
		t.Errorf("Percentage = %d, want 0 for an invalid pct", r.Percentage)
	}
}

func TestParseDeterministic(t *testing.T) {
	const txt = "v=DMARC1; p=none; pct=x; rua=mailto:a@example.com,bad; fo=9"
	a, b := ParseRecord(txt), ParseRecord(txt)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("ParseRecord() not deterministic:\n%#v\n%#v", a, b)
	}
}

func TestIsDMARCRecord(t *testing.T) {
	tests := []struct {
		txt  string
		want bool
	}{
		{"v=DMARC1; p=none", true},
		{"V = dmarc1;p=none", true},
		{"v=DMARC1", true},
		{"v=spf1 -all", false},
		{"p=none; v=DMARC1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDMARCRecord(tt.txt); got != tt.want {
			t.Errorf("IsDMARCRecord(%q) = %v, want %v", tt.txt, got, tt.want)
		}
	}
}

func TestRecordString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v=DMARC1; p=none", "v=DMARC1; p=none"},
		{"v=DMARC1; p=reject; sp=none; pct=50", "v=DMARC1; p=reject; sp=none; pct=50"},
		{"v=DMARC1; p=reject; rua=mailto:a@example.com!10m; adkim=s; fo=1", "v=DMARC1; p=reject; rua=mailto:a@example.com!10m; adkim=s; fo=1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRecord(tt.input).String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrganizationalDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"example.com", "example.com"},
		{"sub.example.com", "example.com"},
		{"deep.sub.example.com", "example.com"},
		{"example.co.uk", "example.co.uk"},
		{"sub.example.co.uk", "example.co.uk"},
		{"localhost", "localhost"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			got := OrganizationalDomain(tt.domain)
			if got != tt.want {
				t.Errorf("OrganizationalDomain(%q) = %q, want %q", tt.domain, got, tt.want)
			}
		})
	}
}

func TestDomainsAligned(t *testing.T) {
	tests := []struct {
		d1, d2 string
		align  Align
		want   bool
	}{
		{"example.com", "example.com", AlignStrict, true},
		{"mail.example.com", "example.com", AlignStrict, false},
		{"mail.example.com", "example.com", AlignRelaxed, true},
		{"example.com", "example.org", AlignRelaxed, false},
	}
	for _, tt := range tests {
		if got := DomainsAligned(tt.d1, tt.d2, tt.align); got != tt.want {
			t.Errorf("DomainsAligned(%q, %q, %q) = %v, want %v", tt.d1, tt.d2, tt.align, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	resolver := dns.MockResolver{
		TXT: map[string][]string{
			"_dmarc.example.com.":     {"v=DMARC1; p=reject"},
			"_dmarc.sub.example.org.": {"google-site-verification=abc"},
			"_dmarc.example.org.":     {"v=DMARC1; p=none"},
			"_dmarc.twice.example.":   {"v=DMARC1; p=none", "v=DMARC1; p=reject"},
		},
		Fail: []string{"_dmarc.broken.example."},
	}
	ctx := context.Background()

	tests := []struct {
		name      string
		domain    string
		found     bool
		queryName string
		records   int
		wantErr   bool
	}{
		{"exact match", "example.com", true, "_dmarc.example.com", 1, false},
		{"org domain fallback", "mail.example.com", true, "_dmarc.example.com", 1, false},
		{"non dmarc records ignored", "sub.example.org", true, "_dmarc.example.org", 1, false},
		{"no record anywhere", "example.net", false, "_dmarc.example.net", 0, false},
		{"multiple records kept", "twice.example", true, "_dmarc.twice.example", 2, false},
		{"resolution failure", "broken.example", false, "_dmarc.broken.example", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Lookup(ctx, resolver, tt.domain, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Found != tt.found {
				t.Errorf("Found = %v, want %v", res.Found, tt.found)
			}
			if res.QueryName != tt.queryName {
				t.Errorf("QueryName = %q, want %q", res.QueryName, tt.queryName)
			}
			if len(res.Records) != tt.records {
				t.Errorf("len(Records) = %d, want %d", len(res.Records), tt.records)
			}
		})
	}
}

func TestEffectivePolicy(t *testing.T) {
	r := ParseRecord("v=DMARC1; p=reject; sp=none")
	if got := r.EffectivePolicy(false); got != PolicyReject {
		t.Errorf("EffectivePolicy(false) = %q, want reject", got)
	}
	if got := r.EffectivePolicy(true); got != PolicyNone {
		t.Errorf("EffectivePolicy(true) = %q, want none", got)
	}
}

func TestExternalReportDomains(t *testing.T) {
	r := ParseRecord("v=DMARC1; p=reject; rua=mailto:a@example.com,mailto:agg@Reports.Vendor.net; ruf=mailto:f@mail.example.com,mailto:f@reports.vendor.net,mailto:x@other.org")
	got := r.ExternalReportDomains("example.com")
	want := []string{"reports.vendor.net", "other.org"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExternalReportDomains() = %q, want %q", got, want)
	}
}
