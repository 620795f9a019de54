package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "media-variants/internal/metrics"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	handler := h.MetricsHandler()
	if handler == nil {
		t.Fatal("Expected MetricsHandler to return a non-nil handler")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Expected Content-Type to contain 'text/plain', got %q", ct)
	}

	body := w.Body.String()
	for _, metric := range []string{"go_goroutines", "process_", "media_variants_"} {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metrics to contain %q", metric)
		}
	}
}
