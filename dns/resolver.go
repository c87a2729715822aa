package dns

import (
	"context"
	"fmt"
	"net"
	"strings"

	mdns "github.com/miekg/dns"
)

// udpProvider queries a classic DNS server using github.com/miekg/dns.
// Truncated UDP answers are retried over TCP.
type udpProvider struct {
	name   string
	server string
	client *mdns.Client
}

func newUDPProvider(name, server string) *udpProvider {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	return &udpProvider{
		name:   name,
		server: server,
		client: &mdns.Client{Net: "udp"},
	}
}

// SystemNameservers returns the nameservers from /etc/resolv.conf as UDP
// endpoints, falling back to public DNS (8.8.8.8, 1.1.1.1).
func SystemNameservers() []Endpoint {
	var servers []string
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	} else {
		for _, s := range config.Servers {
			servers = append(servers, net.JoinHostPort(s, config.Port))
		}
	}

	endpoints := make([]Endpoint, 0, len(servers))
	for _, s := range servers {
		endpoints = append(endpoints, Endpoint{Name: s, URL: s, Format: FormatUDP})
	}
	return endpoints
}

func (p *udpProvider) Name() string { return p.name }

func (p *udpProvider) LookupTXT(ctx context.Context, name string) ([]Answer, error) {
	m := new(mdns.Msg)
	m.SetQuestion(ensureAbsolute(name), mdns.TypeTXT)
	m.RecursionDesired = true
	m.SetEdns0(4096, false)

	resp, _, err := p.client.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return nil, contextError(ctx, fmt.Errorf("dns query failed: %w", err))
	}

	if resp.Truncated {
		tcp := &mdns.Client{Net: "tcp"}
		resp, _, err = tcp.ExchangeContext(ctx, m, p.server)
		if err != nil {
			return nil, contextError(ctx, fmt.Errorf("dns query over tcp failed: %w", err))
		}
	}

	if err := rcodeError(resp.Rcode); err != nil {
		return nil, err
	}
	return answersFromMsg(resp, p.name), nil
}
