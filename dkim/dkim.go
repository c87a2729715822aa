// Package dkim parses and validates DomainKeys Identified Mail (DKIM) key
// records per RFC 6376 Section 3.6.1.
//
// A DKIM key record is published as a TXT record under
// "<selector>._domainkey.<domain>". It carries the public key receivers use
// to verify DKIM-Signature headers, plus the hash algorithms, key type,
// services and flags that key may be used with.
//
// ParseRecord never fails. Problems are collected in Record.Errors (RFC
// violations) and Record.Warnings (weak or unusual settings):
//
//	r := dkim.ParseRecord("v=DKIM1; k=rsa; p=MIIBIjANBgkqh...")
//	fmt.Println(r.KeyLength, r.IsRevoked, r.Errors)
//
// # Key length
//
// KeyLength is an estimate derived from the size of the decoded p= value
// using fixed size bands. It is approximate: a 1024-bit RSA key in PKIX form
// is 162 bytes and lands in the 1536 band. When the key parses as a PKIX
// RSA public key, ModulusBits holds the exact modulus size.
package dkim

// Key types.
const (
	KeyTypeRSA     = "rsa"
	KeyTypeEd25519 = "ed25519"
)

// Hash algorithms.
const (
	HashSHA256 = "sha256"
	HashSHA1   = "sha1"
)
