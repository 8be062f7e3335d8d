package middleware

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

var corsOrigins = []string{"https://app.example.com", "http://localhost:5173"}

func serveCORS(origins []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	h := NewCORSMiddleware(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, called
}

func preflight(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	return req
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	for _, origin := range corsOrigins {
		t.Run(origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
			req.Header.Set("Origin", origin)

			w, called := serveCORS(corsOrigins, req)

			if !called || w.Code != http.StatusTeapot {
				t.Fatalf("request was not passed through: called=%v status=%d", called, w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
				t.Errorf("Allow-Origin = %q, want %q", got, origin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("Allow-Credentials = %q, want true", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != "" {
				t.Errorf("Allow-Methods on a simple request = %q, want empty", got)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	w, called := serveCORS(corsOrigins, preflight("https://app.example.com"))

	if called {
		t.Error("preflight must not reach the handler")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	for header, want := range map[string]string{
		"Access-Control-Allow-Origin":  "https://app.example.com",
		"Access-Control-Allow-Methods": "GET, POST, DELETE",
		"Access-Control-Allow-Headers": "Content-Type, X-CSRF-Token",
		"Access-Control-Max-Age":       "86400",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if vary := w.Header().Values("Vary"); !slices.Contains(vary, "Origin") {
		t.Errorf("Vary = %v, want Origin", vary)
	}
}

// TestCORSMiddleware_UnlistedOrigin は許可リスト外のOriginにヘッダーを返さないことを検証する。
func TestCORSMiddleware_UnlistedOrigin(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "preflight", req: preflight("https://evil.example.com")},
		{name: "scheme違い", req: preflight("http://app.example.com")},
		{name: "Originなし", req: httptest.NewRequest(http.MethodGet, "/api/tasks", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, called := serveCORS(corsOrigins, tt.req)

			if !called {
				t.Error("request should be passed through untouched")
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
				t.Errorf("Allow-Origin = %q, want empty", got)
			}
		})
	}
}

func TestCORSMiddleware_Disabled(t *testing.T) {
	w, called := serveCORS(nil, preflight("https://app.example.com"))

	if !called {
		t.Error("disabled CORS should pass everything through")
	}
	if len(w.Header()) != 0 {
		t.Errorf("headers = %v, want none", w.Header())
	}
}
