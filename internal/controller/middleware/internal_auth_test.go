package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protected(secret string) http.Handler {
	return RequireInternalAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireInternalAuth_ValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/run", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rr := httptest.NewRecorder()

	protected("sekret").ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rr.Code)
	}
}

func TestRequireInternalAuth_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/run", nil)
	rr := httptest.NewRecorder()

	protected("sekret").ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rr.Code)
	}
}

func TestRequireInternalAuth_WrongToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/run", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()

	protected("sekret").ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rr.Code)
	}
}

func TestRequireInternalAuth_MalformedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/run", nil)
	req.Header.Set("Authorization", "Basic abc")
	rr := httptest.NewRecorder()

	protected("sekret").ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rr.Code)
	}
}
