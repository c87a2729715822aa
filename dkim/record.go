package dkim

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
)

// Record represents a DKIM DNS TXT record (RFC 6376 Section 3.6.1).
// The record is retrieved from <selector>._domainkey.<domain>.
type Record struct {
	// Tags maps each tag name to its raw value.
	Tags map[string]string `json:"tags"`

	// Version is the record version, "DKIM1" when valid.
	Version string `json:"version"`

	// Hashes is the list of acceptable hash algorithms (e.g., "sha256", "sha1").
	// Empty means all algorithms are acceptable.
	Hashes []string `json:"hashes,omitempty"`

	// Algorithm is the preferred hash algorithm: sha256 unless h= excludes it.
	Algorithm string `json:"algorithm"`

	// KeyType is the key type: "rsa" (default) or "ed25519".
	KeyType string `json:"keyType"`

	// Notes contains optional human-readable notes.
	Notes string `json:"notes,omitempty"`

	// PublicKey is the base64 p= value with whitespace removed.
	PublicKey string `json:"publicKey"`

	// Pubkey is the raw public key data (base64-decoded).
	// Empty means the key has been revoked or could not be decoded.
	Pubkey []byte `json:"-"`

	// Services lists acceptable service types.
	// Empty or containing "*" means all services.
	Services []string `json:"services,omitempty"`

	// Flags contains key flags:
	//   "y" - Domain is testing DKIM
	//   "s" - i= domain must exactly match d= domain
	Flags []string `json:"flags,omitempty"`

	// KeyLength is the estimated key size in bits. See the package
	// documentation for how it is derived.
	KeyLength int `json:"keyLength"`

	// ModulusBits is the exact RSA modulus size, 0 when the key does not
	// parse as a PKIX RSA public key.
	ModulusBits int `json:"modulusBits,omitempty"`

	IsRevoked  bool `json:"isRevoked"`
	IsTestMode bool `json:"isTestMode"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Valid    bool     `json:"isValid"`
}

func (r *Record) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Record) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ServiceAllowed returns true if the given service is allowed by this key.
func (r *Record) ServiceAllowed(service string) bool {
	if len(r.Services) == 0 {
		return true
	}
	for _, s := range r.Services {
		if s == "*" || strings.EqualFold(s, service) {
			return true
		}
	}
	return false
}

// HashAllowed returns true if the given hash algorithm is allowed.
func (r *Record) HashAllowed(hash string) bool {
	if len(r.Hashes) == 0 {
		return true
	}
	for _, h := range r.Hashes {
		if strings.EqualFold(h, hash) {
			return true
		}
	}
	return false
}

// ParseRecord parses a DKIM DNS TXT record.
//
// ParseRecord always returns a record; Valid is true when Errors is empty.
func ParseRecord(txt string) *Record {
	r := &Record{
		Tags:      map[string]string{},
		Algorithm: HashSHA256,
		KeyType:   KeyTypeRSA,
		Errors:    []string{},
		Warnings:  []string{},
	}

	first := true
	for _, part := range strings.Split(txt, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		tag, value, ok := strings.Cut(part, "=")
		tag = strings.ToLower(strings.TrimSpace(tag))
		value = strings.TrimSpace(value)
		if !ok || tag == "" {
			r.errorf("malformed tag %q", part)
			first = false
			continue
		}

		// Check for duplicate tags
		if _, dup := r.Tags[tag]; dup {
			r.errorf("duplicate tag %q", tag)
			continue
		}
		r.Tags[tag] = value

		if tag == "v" && !first {
			r.errorf("v=DKIM1 must be the first tag")
		}
		first = false
	}

	r.parseVersion()
	r.parseKeyType()
	r.parseHashes()
	r.parseServices()
	r.parseFlags()
	if n, ok := r.Tags["n"]; ok {
		r.Notes = decodeQPSection(n)
	}
	r.parseKey()

	r.Valid = len(r.Errors) == 0
	return r
}

func (r *Record) parseVersion() {
	v, ok := r.Tags["v"]
	switch {
	case !ok:
		r.errorf("missing required tag v")
	case v != "DKIM1":
		r.errorf("invalid version %q, must be DKIM1", v)
	default:
		r.Version = v
	}
}

func (r *Record) parseKeyType() {
	k, ok := r.Tags["k"]
	if !ok {
		return
	}
	r.KeyType = strings.ToLower(k)
	if r.KeyType != KeyTypeRSA {
		r.warnf("key type %q is not rsa and may not be supported by all receivers", k)
	}
}

func (r *Record) parseHashes() {
	h, ok := r.Tags["h"]
	if !ok {
		return
	}
	for _, hash := range colonList(h) {
		hash = strings.ToLower(hash)
		r.Hashes = append(r.Hashes, hash)
		switch hash {
		case HashSHA256:
		case HashSHA1:
			r.warnf("hash algorithm sha1 is deprecated (RFC 8301)")
		default:
			r.warnf("unknown hash algorithm %q", hash)
		}
	}
	if len(r.Hashes) > 0 && !slices.Contains(r.Hashes, HashSHA256) {
		r.Algorithm = r.Hashes[0]
	}
}

func (r *Record) parseServices() {
	s, ok := r.Tags["s"]
	if !ok {
		return
	}
	r.Services = colonList(s)
	if !r.ServiceAllowed("email") {
		r.warnf("service type %q excludes email", s)
	}
}

func (r *Record) parseFlags() {
	t, ok := r.Tags["t"]
	if !ok {
		return
	}
	for _, f := range colonList(t) {
		f = strings.ToLower(f)
		r.Flags = append(r.Flags, f)
		switch f {
		case "y":
			r.IsTestMode = true
			r.warnf("key is in test mode (t=y)")
		case "s":
		default:
			r.warnf("unknown flag %q", f)
		}
	}
}

func (r *Record) parseKey() {
	p, ok := r.Tags["p"]
	if !ok {
		r.errorf("missing required tag p")
		return
	}

	// Remove all whitespace
	r.PublicKey = strings.Map(func(c rune) rune {
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			return -1
		}
		return c
	}, p)

	if r.PublicKey == "" {
		r.IsRevoked = true
		r.warnf("key revoked: empty public key (p=)")
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(r.PublicKey)
	if err != nil {
		r.errorf("invalid public key encoding: %v", err)
		return
	}
	r.Pubkey = decoded
	r.KeyLength = estimateKeyLength(len(decoded))

	if r.KeyType != KeyTypeRSA {
		return
	}
	r.ModulusBits = modulusBits(decoded)
	if r.KeyLength < 1024 {
		r.warnf("key length of about %d bits is too weak", r.KeyLength)
	}
}

// estimateKeyLength maps the decoded key size in bytes to an RSA key size
// band. This is not an ASN.1 parse and is only approximate.
func estimateKeyLength(n int) int {
	switch {
	case n > 400:
		return 4096
	case n > 300:
		return 3072
	case n > 200:
		return 2048
	case n > 150:
		return 1536
	case n > 100:
		return 1024
	default:
		return 512
	}
}

// modulusBits returns the modulus size of a PKIX RSA public key, or 0.
func modulusBits(data []byte) int {
	pk, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return 0
	}
	rsaPK, ok := pk.(*rsa.PublicKey)
	if !ok {
		return 0
	}
	return rsaPK.N.BitLen()
}

func colonList(s string) []string {
	var list []string
	for _, v := range strings.Split(s, ":") {
		v = strings.TrimSpace(v)
		if v != "" {
			list = append(list, v)
		}
	}
	return list
}

// decodeQPSection decodes a quoted-printable encoded section.
func decodeQPSection(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) {
			hi := hexVal(s[i+1])
			lo := hexVal(s[i+2])
			if hi >= 0 && lo >= 0 {
				b.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c - 'A' + 10)
	case c >= 'a' && c <= 'f':
		return int(c - 'a' + 10)
	}
	return -1
}
