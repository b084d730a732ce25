package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPICSPConfig(t *testing.T) {
	cfg := APICSPConfig()

	if len(cfg.DefaultSrc) != 1 || cfg.DefaultSrc[0] != "'none'" {
		t.Errorf("API DefaultSrc should be ['none'], got %v", cfg.DefaultSrc)
	}
	if len(cfg.FrameAncestors) != 1 || cfg.FrameAncestors[0] != "'none'" {
		t.Errorf("FrameAncestors should be ['none'], got %v", cfg.FrameAncestors)
	}
}

func TestBuildCSPHeader(t *testing.T) {
	tests := []struct {
		name     string
		cfg      CSPConfig
		expected string
	}{
		{
			name: "simple config",
			cfg: CSPConfig{
				DefaultSrc: []string{"'self'"},
				ConnectSrc: []string{"'self'"},
			},
			expected: "default-src 'self'; connect-src 'self'",
		},
		{
			name: "with upgrade-insecure-requests",
			cfg: CSPConfig{
				DefaultSrc:              []string{"'self'"},
				UpgradeInsecureRequests: true,
			},
			expected: "default-src 'self'; upgrade-insecure-requests",
		},
		{
			name: "multiple sources",
			cfg: CSPConfig{
				DefaultSrc: []string{"'self'"},
				ConnectSrc: []string{"'self'", "wss:", "https://example.com"},
			},
			expected: "default-src 'self'; connect-src 'self' wss: https://example.com",
		},
		{
			name:     "api config",
			cfg:      APICSPConfig(),
			expected: "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.cfg.BuildCSPHeader()
			if result != tt.expected {
				t.Errorf("Expected CSP header:\n%s\nGot:\n%s", tt.expected, result)
			}
		})
	}
}

func TestSecurityHeadersWithCSP(t *testing.T) {
	handler := SecurityHeadersWithCSP(APICSPConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// Check all security headers are present
	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"X-XSS-Protection",
		"Referrer-Policy",
		"Content-Security-Policy",
	}

	for _, header := range headers {
		if w.Header().Get(header) == "" {
			t.Errorf("Expected header '%s' to be set", header)
		}
	}

	// Verify specific values
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options should be DENY")
	}

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options should be nosniff")
	}
}

func TestSecurityHeadersEmptyCSP(t *testing.T) {
	handler := SecurityHeadersWithCSP(CSPConfig{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty CSP config should not set the header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("standard headers should still be set")
	}
}

func TestLimitStringLength(t *testing.T) {
	tests := []struct {
		input     string
		maxLength int
		expected  string
	}{
		{"short", 10, "short"},
		{"exactly ten!", 12, "exactly ten!"},
		{"this is too long", 10, "this is to"},
		{"", 5, ""},
	}

	for _, tt := range tests {
		result := LimitStringLength(tt.input, tt.maxLength)
		if result != tt.expected {
			t.Errorf("LimitStringLength(%q, %d) = %q, want %q", tt.input, tt.maxLength, result, tt.expected)
		}
	}
}
