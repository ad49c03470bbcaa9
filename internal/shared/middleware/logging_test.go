package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusWriter_RecordsFirstStatus(t *testing.T) {
	sw := wrapResponseWriter(httptest.NewRecorder())

	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusOK) // ignored

	if sw.Status() != http.StatusNotFound {
		t.Errorf("Status() = %d, want %d", sw.Status(), http.StatusNotFound)
	}
}

func TestStatusWriter_ZeroBeforeWrite(t *testing.T) {
	sw := wrapResponseWriter(httptest.NewRecorder())

	if sw.Status() != 0 {
		t.Errorf("Status() = %d before any write, want 0", sw.Status())
	}
}

func TestLogging_PassesStatusThrough(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/email-sync/connections", nil))

	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
}

func TestLogging_ImplicitOK(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
