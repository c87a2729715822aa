package dns

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	mdns "github.com/miekg/dns"
)

// maxResponseSize bounds how much of a DoH response body is read.
const maxResponseSize = 64 * 1024

// jsonResponse is the JSON DNS-over-HTTPS response shared by Google,
// Cloudflare and Quad9.
//
// https://developers.google.com/speed/public-dns/docs/doh/json
// https://developers.cloudflare.com/1.1.1.1/encryption/dns-over-https/make-api-requests/dns-json/
type jsonResponse struct {
	Status     int      `json:"Status"`
	TC         bool     `json:"TC"`
	AD         bool     `json:"AD"`
	Answer     []jsonRR `json:"Answer"`
	Authority  []jsonRR `json:"Authority"`
	Additional []jsonRR `json:"Additional"`
	Comment    any      `json:"Comment"`
}

type jsonRR struct {
	Name string `json:"name"`
	Type uint16 `json:"type"`
	TTL  int64  `json:"TTL"`
	Data string `json:"data"`
}

// jsonProvider queries a JSON DoH endpoint.
type jsonProvider struct {
	name   string
	url    string
	client *http.Client
}

func (p *jsonProvider) Name() string { return p.name }

func (p *jsonProvider) LookupTXT(ctx context.Context, name string) ([]Answer, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("dns: invalid provider URL: %w", err)
	}
	q := u.Query()
	q.Set("name", trimDot(name))
	q.Set("type", "TXT")
	u.RawQuery = q.Encode()

	body, err := httpGet(ctx, p.client, u.String(), "application/dns-json")
	if err != nil {
		return nil, err
	}

	var resp jsonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if err := rcodeError(resp.Status); err != nil {
		return nil, err
	}
	return p.normalize(resp), nil
}

// normalize converts the TXT entries of a JSON response to Answers.
// CNAME and other entries in the answer chain are skipped.
func (p *jsonProvider) normalize(resp jsonResponse) []Answer {
	var answers []Answer
	for _, rr := range resp.Answer {
		if rr.Type != mdns.TypeTXT {
			continue
		}
		ttl := rr.TTL
		if ttl < 0 {
			ttl = 0
		}
		answers = append(answers, Answer{
			Name:         trimDot(rr.Name),
			RecordType:   mdns.TypeToString[mdns.TypeTXT],
			TTL:          uint32(ttl),
			Data:         unquoteTXT(rr.Data),
			ProviderUsed: p.name,
		})
	}
	return answers
}

// wireProvider queries an RFC 8484 DoH endpoint using GET.
type wireProvider struct {
	name   string
	url    string
	client *http.Client
}

func (p *wireProvider) Name() string { return p.name }

func (p *wireProvider) LookupTXT(ctx context.Context, name string) ([]Answer, error) {
	m := new(mdns.Msg)
	m.SetQuestion(ensureAbsolute(name), mdns.TypeTXT)
	m.RecursionDesired = true
	// RFC 8484 Section 4.1: use ID 0 for cache friendliness.
	m.Id = 0

	packed, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("dns: packing query: %w", err)
	}

	u, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("dns: invalid provider URL: %w", err)
	}
	q := u.Query()
	q.Set("dns", base64.RawURLEncoding.EncodeToString(packed))
	u.RawQuery = q.Encode()

	body, err := httpGet(ctx, p.client, u.String(), "application/dns-message")
	if err != nil {
		return nil, err
	}

	resp := new(mdns.Msg)
	if err := resp.Unpack(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if err := rcodeError(resp.Rcode); err != nil {
		return nil, err
	}
	return answersFromMsg(resp, p.name), nil
}

// answersFromMsg extracts TXT answers from a DNS message.
func answersFromMsg(resp *mdns.Msg, provider string) []Answer {
	var answers []Answer
	for _, rr := range resp.Answer {
		txt, ok := rr.(*mdns.TXT)
		if !ok {
			continue
		}
		answers = append(answers, Answer{
			Name:         trimDot(txt.Hdr.Name),
			RecordType:   mdns.TypeToString[mdns.TypeTXT],
			TTL:          txt.Hdr.Ttl,
			Data:         joinTXT(txt.Txt),
			ProviderUsed: provider,
		})
	}
	return answers
}

func httpGet(ctx context.Context, client *http.Client, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dns: building request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, contextError(ctx, fmt.Errorf("dns query failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrBadResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, contextError(ctx, fmt.Errorf("dns: reading response: %w", err))
	}
	return body, nil
}
