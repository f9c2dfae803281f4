package daemon

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInstrumentHandler_SetsRequestIdHeader(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metrics := NewMetrics()
	handler := InstrumentHandler(inner, metrics, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	id := rec.Header().Get("X-Request-Id")
	if id == "" {
		t.Fatal("want a non-empty X-Request-Id header")
	}
}

func TestInstrumentHandler_RequestIdsAreUnique(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := InstrumentHandler(inner, NewMetrics(), nil)

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	id1, id2 := rec1.Header().Get("X-Request-Id"), rec2.Header().Get("X-Request-Id")
	if id1 == id2 {
		t.Fatalf("want distinct request ids, got %q twice", id1)
	}
}

func TestInstrumentHandler_NoInstrumentationPassesThrough(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := InstrumentHandler(inner, nil, nil)
	if handler == nil {
		t.Fatal("want non-nil handler")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if !called {
		t.Fatal("want inner handler invoked")
	}
	if rec.Header().Get("X-Request-Id") != "" {
		t.Fatal("unwrapped handler should not set a request id header")
	}
}
