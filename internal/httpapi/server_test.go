package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinylib/msgp/msgp"

	"github.com/synqronlabs/posture"
	"github.com/synqronlabs/posture/dns"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	checker, err := posture.New(posture.Config{
		Resolver: dns.MockResolver{TXT: map[string][]string{
			"_dmarc.example.com.": {"v=DMARC1; p=none"},
			"example.com.":        {"v=spf1 ~all"},
		}},
		Selectors: []string{"google"},
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("posture.New() error = %v", err)
	}
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "posture_test_total", Help: "test"}))

	srv := httptest.NewServer(New(checker, Options{ActionLimit: 2, Gatherer: reg}).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, body
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("GET /healthz = %d %s", resp.StatusCode, body)
	}
}

func TestRecords(t *testing.T) {
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/v1/domains/Example.com/records", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var data struct {
		ID     string `json:"id"`
		Domain string `json:"domain"`
		DMARC  struct {
			Found bool `json:"found"`
		} `json:"dmarc"`
		DKIM []json.RawMessage `json:"dkim"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if data.Domain != "example.com" || data.ID == "" || !data.DMARC.Found {
		t.Errorf("records = %+v", data)
	}
	if data.DKIM == nil {
		t.Error("dkim = null, want []")
	}
}

func TestReport(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		query string
		max   int
		exact bool
	}{
		{"", 2, true},
		{"?limit=1", 1, true},
		{"?limit=10", 10, false},
	}
	for _, tt := range tests {
		resp, body := get(t, srv.URL+"/v1/domains/example.com/report"+tt.query, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, body)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}

		var a struct {
			Report struct {
				Domain     string `json:"domain"`
				TotalScore int    `json:"totalScore"`
			} `json:"report"`
			ActionPlan []struct {
				Priority string `json:"priority"`
				Title    string `json:"title"`
			} `json:"actionPlan"`
		}
		if err := json.Unmarshal(body, &a); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if a.Report.Domain != "example.com" {
			t.Errorf("report domain = %q", a.Report.Domain)
		}
		if n := len(a.ActionPlan); n > tt.max || tt.exact && n != tt.max {
			t.Errorf("limit %q: %d items, want %d", tt.query, n, tt.max)
		}
	}
}

func TestReportMsgpack(t *testing.T) {
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/v1/domains/example.com/report", http.Header{
		"Accept": {"application/json;q=0.5, application/msgpack"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != ContentTypeMsgpack {
		t.Errorf("Content-Type = %q, want %q", ct, ContentTypeMsgpack)
	}
	sz, _, err := msgp.ReadMapHeaderBytes(body)
	if err != nil || sz == 0 {
		t.Errorf("ReadMapHeaderBytes() = %d, %v", sz, err)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{
		"/v1/domains/localhost/records",
		"/v1/domains/exa%20mple.com/report",
		"/v1/domains/example.com/report?limit=0",
		"/v1/domains/example.com/report?limit=x",
	} {
		resp, body := get(t, srv.URL+path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, resp.StatusCode)
		}
		var e struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
			t.Errorf("GET %s body = %s, want JSON error", path, body)
		}
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "posture_test_total") {
		t.Errorf("GET /metrics = %d %s", resp.StatusCode, body)
	}
}
