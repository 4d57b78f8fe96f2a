package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(mw)
	r.GET("/probe", func(c *gin.Context) { c.String(200, "ok") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeadersSet(t *testing.T) {
	w := serve(HeadersMiddleware(), httptest.NewRequest("GET", "/probe", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, expected := range want {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}

	csp := w.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Fatal("Content-Security-Policy not set")
	}
	// The dashboard needs the alert socket and its inline script.
	if !strings.Contains(csp, "connect-src 'self' ws: wss:") {
		t.Errorf("CSP does not admit WebSocket connections: %q", csp)
	}
	if !strings.Contains(csp, "'unsafe-inline'") {
		t.Errorf("CSP blocks the dashboard's inline script: %q", csp)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := serve(CORSMiddleware([]string{"https://ops.example.com"}), req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("Allow-Origin = %q, want the request origin echoed", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true for a named origin", got)
	}
}

func TestCORSRejectedOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := serve(CORSMiddleware([]string{"https://ops.example.com"}), req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for a disallowed origin, want unset", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	w := serve(CORSMiddleware([]string{"*"}), req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example.com" {
		t.Errorf("Allow-Origin = %q, want the request origin echoed", got)
	}
	// Wildcard origins must not be paired with credentials.
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q under wildcard, want unset", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/probe", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := serve(CORSMiddleware([]string{"*"}), req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods not set on preflight")
	}
}
