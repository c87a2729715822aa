package dns

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	mdns "github.com/miekg/dns"
)

// Format selects the protocol used to talk to a provider.
type Format string

const (
	// FormatJSON is the JSON DNS-over-HTTPS API offered by Google, Cloudflare
	// and Quad9: GET ?name=<qname>&type=TXT with Accept: application/dns-json.
	FormatJSON Format = "json"

	// FormatWire is RFC 8484 DNS-over-HTTPS carrying DNS wire format.
	FormatWire Format = "wire"

	// FormatUDP is classic DNS over UDP. The endpoint URL is host:port.
	FormatUDP Format = "udp"

	// FormatSystem uses the host's configured resolver. The URL is ignored.
	FormatSystem Format = "system"
)

// Endpoint describes one provider.
type Endpoint struct {
	// Name identifies the provider in answers, logs and metrics.
	Name string `mapstructure:"name"`

	// URL is the DoH endpoint, or host:port for FormatUDP.
	URL string `mapstructure:"url"`

	// Format defaults to FormatJSON.
	Format Format `mapstructure:"format"`
}

// DefaultEndpoints are the providers used when none are configured.
var DefaultEndpoints = []Endpoint{
	{Name: "google", URL: "https://dns.google/resolve", Format: FormatJSON},
	{Name: "cloudflare", URL: "https://cloudflare-dns.com/dns-query", Format: FormatJSON},
	{Name: "quad9", URL: "https://dns.quad9.net:5053/dns-query", Format: FormatJSON},
}

// Provider answers TXT queries from one upstream.
//
// LookupTXT returns ErrDNSNotFound when the upstream answered authoritatively
// that the name does not exist. Any other error means the upstream could not
// be used for this query.
type Provider interface {
	Name() string
	LookupTXT(ctx context.Context, name string) ([]Answer, error)
}

type providerFactory func(ep Endpoint, hc *http.Client) (Provider, error)

var registry = map[Format]providerFactory{
	FormatJSON: func(ep Endpoint, hc *http.Client) (Provider, error) {
		return &jsonProvider{name: ep.Name, url: ep.URL, client: hc}, nil
	},
	FormatWire: func(ep Endpoint, hc *http.Client) (Provider, error) {
		return &wireProvider{name: ep.Name, url: ep.URL, client: hc}, nil
	},
	FormatUDP: func(ep Endpoint, _ *http.Client) (Provider, error) {
		return newUDPProvider(ep.Name, ep.URL), nil
	},
	FormatSystem: func(ep Endpoint, _ *http.Client) (Provider, error) {
		return NewStdResolver(ep.Name), nil
	},
}

// NewProvider builds the provider for ep.
func NewProvider(ep Endpoint, hc *http.Client) (Provider, error) {
	if ep.Format == "" {
		ep.Format = FormatJSON
	}
	if ep.Name == "" {
		ep.Name = ep.URL
	}
	factory, ok := registry[ep.Format]
	if !ok {
		return nil, fmt.Errorf("dns: unknown provider format %q", ep.Format)
	}
	if ep.URL == "" && ep.Format != FormatSystem {
		return nil, fmt.Errorf("dns: provider %q has no URL", ep.Name)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return factory(ep, hc)
}

// rcodeError converts a DNS response code to an error.
func rcodeError(rcode int) error {
	switch rcode {
	case mdns.RcodeSuccess:
		return nil
	case mdns.RcodeNameError:
		return ErrDNSNotFound
	case mdns.RcodeServerFailure:
		return ErrDNSServFail
	case mdns.RcodeRefused:
		return ErrDNSRefused
	}
	if s, ok := mdns.RcodeToString[rcode]; ok {
		return fmt.Errorf("%w: rcode %s", ErrBadResponse, s)
	}
	return fmt.Errorf("%w: rcode %d", ErrBadResponse, rcode)
}

// contextError maps context expiry to ErrDNSTimeout.
func contextError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrDNSTimeout, err)
	}
	return err
}

// unquoteTXT converts TXT record data in presentation format to its text.
// Data that is not quoted is returned as-is; quoted data is unquoted once
// and its character-strings joined per RFC 7208 Section 3.3.
func unquoteTXT(data string) string {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, `"`) {
		return data
	}

	rr, err := mdns.NewRR(". 0 IN TXT " + data)
	if err == nil {
		if txt, ok := rr.(*mdns.TXT); ok {
			return joinTXT(txt.Txt)
		}
	}

	if len(data) >= 2 && strings.HasSuffix(data, `"`) {
		return data[1 : len(data)-1]
	}
	return data
}

// joinTXT joins character-strings as held by miekg/dns, which keeps them
// escaped, into plain text.
func joinTXT(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(unescapeTXT(p))
	}
	return b.String()
}

// unescapeTXT resolves \X and \DDD escapes.
func unescapeTXT(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if v, err := strconv.Atoi(s[i+1 : i+4]); err == nil && v <= 255 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
