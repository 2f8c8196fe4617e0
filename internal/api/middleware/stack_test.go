package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/formlab/formd/internal/log"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = log.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	echoed := w.Header().Get(HeaderRequestID)
	if echoed == "" {
		t.Fatal("expected a generated request ID in the response header")
	}
	if _, err := uuid.Parse(echoed); err != nil {
		t.Errorf("expected a UUID request ID, got %q", echoed)
	}
	if seen != echoed {
		t.Errorf("context ID %q does not match header %q", seen, echoed)
	}
}

func TestRequestIDEchoesInbound(t *testing.T) {
	handler := RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(HeaderRequestID, "req-from-client")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "req-from-client" {
		t.Errorf("expected inbound ID echoed, got %q", got)
	}
}

func TestRecovererReturnsJSON500(t *testing.T) {
	handler := Recoverer(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["error"] != "internal_error" {
		t.Errorf("expected internal_error code, got %v", body["error"])
	}
	if rid, ok := body["requestId"].(string); !ok || rid == "" {
		t.Error("expected requestId in panic response")
	}
}

func TestStackAppliesAllLayers(t *testing.T) {
	r := NewRouter(StackConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		EnableMetrics:  true,
		EnableLogging:  true,
		RateLimit:      100,
		RateWindow:     time.Minute,
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 through full stack, got %d", w.Code)
	}
	if w.Header().Get(HeaderRequestID) == "" {
		t.Error("expected request ID header from stack")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers from stack")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected CORS allow header, got %q", got)
	}
}

func TestStackRateLimitKicksIn(t *testing.T) {
	r := NewRouter(StackConfig{
		RateLimit:  2,
		RateWindow: time.Minute,
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = "172.16.0.9:4242"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "172.16.0.9:4242"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once limit is hit, got %d", w.Code)
	}
}

func TestStackDisabledRateLimit(t *testing.T) {
	r := NewRouter(StackConfig{})
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "172.16.0.9:4242"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with rate limiting disabled, got %d", i+1, w.Code)
		}
	}
}
