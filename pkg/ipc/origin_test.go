package ipc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy_Allow(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		want     bool
		wildcard bool
	}{
		{"localhost any port", []string{"http://localhost"}, "http://localhost:5173", true, false},
		{"loopback ip any port", []string{"http://127.0.0.1"}, "http://127.0.0.1:4488", true, false},
		{"exact match", []string{"https://app.example.com"}, "https://app.example.com", true, false},
		{"default port implied", []string{"https://app.example.com"}, "https://app.example.com:443", true, false},
		{"non default port rejected", []string{"https://app.example.com"}, "https://app.example.com:444", false, false},
		{"scheme mismatch", []string{"https://app.example.com"}, "http://app.example.com", false, false},
		{"wildcard", []string{"*"}, "https://anything.test", true, true},
		{"explicit wins over wildcard", []string{"*", "http://localhost"}, "http://localhost:3000", true, false},
		{"garbage origin", []string{"*"}, "not a url", false, false},
		{"empty origin", []string{"*"}, "", false, false},
		{"ipv6 loopback", []string{"http://[::1]"}, "http://[::1]:8080", true, false},
		{"blank entries skipped", []string{" ", ""}, "http://localhost", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, wildcard := newOriginPolicy(tt.allowed).allow(tt.origin)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wildcard, wildcard)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := &Server{origins: newOriginPolicy([]string{"http://localhost"})}
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "http://broker.test/start-session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodPost, "http://broker.test/start-session", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	called := false
	s := &Server{origins: newOriginPolicy([]string{"*"})}
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "http://broker.test/end-session", nil)
	req.Header.Set("Origin", "https://ui.test")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://ui.test", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Vary"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestWebSocketOriginAllowed(t *testing.T) {
	s := &Server{origins: newOriginPolicy([]string{"http://good.test"})}

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"same host", "http://broker.example.com", true},
		{"configured origin", "http://good.test", true},
		{"foreign origin", "http://evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://broker.example.com/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.isWebSocketOriginAllowed(req))
		})
	}
}
