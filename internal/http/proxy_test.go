package http

import (
	nethttp "net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
)

func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")

	tests := []struct {
		name    string
		noProxy string
		target  string
		direct  bool
	}{
		{"empty list proxies everything", "", "http://gpu-box:8001/api/health", false},
		{"exact host bypasses", "gpu-box", "http://gpu-box:8001/api/health", true},
		{"domain bypasses subdomain", "ocr.internal", "https://api.ocr.internal/api/batch-upload", true},
		{"cidr bypasses", "10.0.0.0/8", "http://10.1.2.3:8001/api/health", true},
		{"non matching host proxied", "ocr.internal", "https://s3.amazonaws.com/bucket", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := proxyFuncWithBypass(proxyURL, tt.noProxy)
			req, _ := nethttp.NewRequest(nethttp.MethodGet, tt.target, nil)
			got, err := fn(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.direct && got != nil {
				t.Errorf("expected direct connection, got proxy %v", got)
			}
			if !tt.direct && (got == nil || got.Host != "proxy.corp:8080") {
				t.Errorf("expected proxy.corp:8080, got %v", got)
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyUser = "alice"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("expected default port 8080, got %s", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}

	cfg.ProxyPassword = "pw"
	cfg.ProxyPort = 3128
	u = buildProxyURL(cfg)
	if u.Host != "proxy.corp:3128" || u.User == nil {
		t.Errorf("unexpected proxy URL %s", u.Redacted())
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	cfg := config.NewDefaultConfig()

	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("no-proxy: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("batch client must not carry an overall timeout, got %v", client.Timeout)
	}

	cfg.ProxyMode = "ntlm"
	cfg.ProxyHost = "proxy.corp"
	client, err = ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("ntlm: %v", err)
	}
	if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
		t.Errorf("expected NTLM negotiator transport, got %T", client.Transport)
	}

	cfg.ProxyMode = "socks"
	if _, err := ConfigureHTTPClient(cfg); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ProxyUser = "alice"
	if NeedsProxyPassword(cfg) {
		t.Error("no-proxy mode never needs a password")
	}
	cfg.ProxyMode = "basic"
	if !NeedsProxyPassword(cfg) {
		t.Error("basic mode with user and no password needs a prompt")
	}
	cfg.ProxyPassword = "pw"
	if NeedsProxyPassword(cfg) {
		t.Error("password already set")
	}
}

func TestCreateOptimizedClient_DisablesHTTP2BehindProxy(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.corp"

	client, err := CreateOptimizedClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if tr.ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be disabled when a proxy is configured")
	}
	if !tr.DisableCompression {
		t.Error("compression should be disabled")
	}
}
