package meteringest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"ocpp-gateway/internal/sitepower"
)

func TestServeHTTPUpdatesSitePower(t *testing.T) {
	site := &sitepower.SitePower{}
	h := New(site, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/insert.php", strings.NewReader(`{"pt": "32500.5"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Fatalf("body = %q, want OK", w.Body.String())
	}
	if got := site.Snapshot().CurrentW; got != 32500.5 {
		t.Fatalf("site power = %v, want 32500.5", got)
	}
}

func TestServeHTTPNumericPT(t *testing.T) {
	site := &sitepower.SitePower{}
	h := New(site, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/insert.php", strings.NewReader(`{"pt": 1200}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := site.Snapshot().CurrentW; got != 1200 {
		t.Fatalf("site power = %v, want 1200", got)
	}
}

func TestServeHTTPInvalidJSON(t *testing.T) {
	site := &sitepower.SitePower{}
	h := New(site, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/insert.php", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := site.Snapshot().CurrentW; got != 0 {
		t.Fatalf("site power must be untouched on malformed body, got %v", got)
	}
}

func TestServeHTTPMissingPTStillReturnsOK(t *testing.T) {
	site := &sitepower.SitePower{}
	h := New(site, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/insert.php", strings.NewReader(`{"other":1}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (missing pt is only logged, not an error)", w.Code)
	}
}
