package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
}

// TestNewSafeClientHasTransport はSafeClientにカスタムTransportが設定されていることをテストする。
func TestNewSafeClientHasTransport(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClientBlocksLoopback はループバック上のIdPへのリクエストがブロックされることをテストする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL + "/.well-known/jwks.json")
	if err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestNewIdentityProviderClient_WithoutGuard はガードなしのクライアントがローカルのIdPに届くことをテストする。
func TestNewIdentityProviderClient_WithoutGuard(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewIdentityProviderClient(nil, 2*time.Second)
	if client.Timeout != 2*time.Second {
		t.Errorf("expected timeout 2s, got %v", client.Timeout)
	}

	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	resp.Body.Close()
}

// TestNewIdentityProviderClient_WithGuard はガード付きの場合にsafeurlのクライアントが使われることをテストする。
func TestNewIdentityProviderClient_WithGuard(t *testing.T) {
	client := NewIdentityProviderClient(NewSSRFGuard(), 3*time.Second)
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected safeurl transport")
	}
}

// TestValidateURL_PublicHTTPS は公開httpsのIdP URLが受け付けられることをテストする。
func TestValidateURL_PublicHTTPS(t *testing.T) {
	guard := NewSSRFGuard()

	for _, u := range []string{
		"https://example.auth0.com",
		"https://example.eu.auth0.com/.well-known/jwks.json",
		"https://login.example.com:443/userinfo",
	} {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err != nil {
				t.Errorf("ValidateURL(%q) returned error: %v", u, err)
			}
		})
	}
}

// TestValidateURL_Rejected は危険なURLが拒否されることをテストする。
func TestValidateURL_Rejected(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "not-a-url"},
		{"plain http", "http://example.auth0.com"},
		{"ftp", "ftp://example.com/jwks"},
		{"file", "file:///etc/passwd"},
		{"non-standard port", "https://example.auth0.com:8443"},
		{"private 10/8", "https://10.0.0.1/userinfo"},
		{"private 172.16/12", "https://172.16.0.1/userinfo"},
		{"private 192.168/16", "https://192.168.1.100/userinfo"},
		{"loopback", "https://127.0.0.1/userinfo"},
		{"localhost", "https://localhost/userinfo"},
		{"localhost subdomain", "https://idp.localhost/userinfo"},
		{"metadata", "https://169.254.169.254/latest/meta-data/"},
		{"ipv6 loopback", "https://[::1]/userinfo"},
		{"ipv6 unique local", "https://[fd00::1]/userinfo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) should have returned error", tt.url)
			}
		})
	}
}
