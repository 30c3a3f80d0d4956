package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type countingReporter map[string]int

func (c countingReporter) Suspicious(reason string) { c[reason]++ }

func TestDetector_Inspect(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
		want   string
	}{
		{name: "clean", method: "GET", target: "/api/products", want: ""},
		{name: "traversal", method: "GET", target: "/static/../../etc/passwd", want: ReasonPathPattern},
		{name: "dotenv", method: "GET", target: "/.env", want: ReasonPathPattern},
		{name: "sql in query", method: "GET", target: "/api/products?q=1%20union%20select", want: ReasonQueryPattern},
		{name: "scanner agent", method: "GET", target: "/", header: map[string]string{"User-Agent": "sqlmap/1.7"}, want: ReasonUserAgent},
		{name: "browser agent", method: "GET", target: "/", header: map[string]string{"User-Agent": "Mozilla/5.0"}, want: ""},
		{name: "trace method", method: "TRACE", target: "/", want: ReasonMethod},
		{name: "long url", method: "GET", target: "/?q=" + strings.Repeat("a", 2100), want: ReasonLongURL},
		{name: "proxy chain", method: "GET", target: "/", header: map[string]string{"X-Forwarded-For": "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7"}, want: ReasonProxyChain},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			got, ok := d.Inspect(r)
			if got != tt.want || ok != (tt.want != "") {
				t.Errorf("Inspect() = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}
}

func TestDetector_DetectSuspiciousRequestCounts(t *testing.T) {
	d := NewDetector()
	d.DetectSuspiciousRequest(httptest.NewRequest("GET", "/wp-admin", nil))
	d.DetectSuspiciousRequest(httptest.NewRequest("GET", "/", nil))
	if d.SuspiciousCount() != 1 {
		t.Errorf("SuspiciousCount() = %d, want 1", d.SuspiciousCount())
	}
}

func TestDetector_MiddlewareReportsButServes(t *testing.T) {
	d := NewDetector()
	rep := countingReporter{}
	served := false
	h := d.Middleware(nil, rep)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/.git/config", nil))

	if !served {
		t.Error("suspicious request should still reach the handler")
	}
	if rep[ReasonPathPattern] != 1 {
		t.Errorf("reporter = %v", rep)
	}
}

func TestDetector_ExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{name: "direct", remote: "203.0.113.5:4000", want: "203.0.113.5"},
		{name: "untrusted peer ignores xff", remote: "203.0.113.5:4000", xff: "198.51.100.1", want: "203.0.113.5"},
		{name: "trusted proxy xff", remote: "10.0.0.2:80", xff: "198.51.100.1, 10.0.0.1", want: "198.51.100.1"},
		{name: "trusted proxy real ip", remote: "127.0.0.1:80", xri: "198.51.100.7", want: "198.51.100.7"},
		{name: "trusted proxy bad xff", remote: "192.168.1.1:80", xff: "garbage", want: "192.168.1.1"},
		{name: "no port", remote: "198.51.100.9", want: "198.51.100.9"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetector_AddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Error("AddTrustedProxy() should reject invalid CIDR")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy() error = %v", err)
	}
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:1"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(r); got != "198.51.100.1" {
		t.Errorf("ExtractClientIP() = %q", got)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options not set")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "https://unpkg.com") {
		t.Error("CSP should allow unpkg scripts")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(3600)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/static/app.css", nil))
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
}
