package dmarc

// Policy determines how receivers should handle messages that fail DMARC.
type Policy string

const (
	// PolicyEmpty is the zero value, used when no valid policy was published.
	PolicyEmpty Policy = ""

	// PolicyNone requests no specific action be taken for failing messages.
	// This is typically used for monitoring/reporting during initial deployment.
	PolicyNone Policy = "none"

	// PolicyQuarantine requests that failing messages be treated as suspicious.
	// Receivers may deliver to spam folder or add additional scrutiny.
	PolicyQuarantine Policy = "quarantine"

	// PolicyReject requests that failing messages be rejected.
	PolicyReject Policy = "reject"
)

// parsePolicy parses a policy value case-insensitively.
func parsePolicy(s string) (Policy, bool) {
	switch p := Policy(toLower(s)); p {
	case PolicyNone, PolicyQuarantine, PolicyReject:
		return p, true
	}
	return PolicyEmpty, false
}

// Align specifies the alignment mode for identifier comparison.
type Align string

const (
	// AlignRelaxed requires the organizational domains to match.
	// This is the default mode.
	AlignRelaxed Align = "r"

	// AlignStrict requires exact domain matches.
	AlignStrict Align = "s"
)

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
