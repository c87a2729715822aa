package dns

import (
	"strings"

	mdns "github.com/miekg/dns"
)

// ensureAbsolute ensures the domain name ends with a dot (FQDN format).
func ensureAbsolute(name string) string {
	return mdns.Fqdn(name)
}

// trimDot removes a trailing dot from a domain name.
func trimDot(name string) string {
	return strings.TrimSuffix(name, ".")
}

// IsHostname reports whether name is a syntactically valid host name with at
// least two labels. Labels consist of letters, digits, hyphens and
// underscores, may not start or end with a hyphen, and are at most 63 octets.
// A trailing dot is permitted.
func IsHostname(name string) bool {
	name = trimDot(name)
	if name == "" || len(name) > 253 {
		return false
	}
	if _, ok := mdns.IsDomainName(name); !ok {
		return false
	}

	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
			return false
		}
		for i := 0; i < len(l); i++ {
			c := l[i]
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
				return false
			}
		}
	}

	// A numeric top-level label means this is an IP address, not a name.
	tld := labels[len(labels)-1]
	return strings.Trim(tld, "0123456789") != ""
}
