package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	// Unlabelled gauges are always exported.
	if !strings.Contains(body, "vidmeta_jobs_active") {
		t.Error("Expected metrics output to contain vidmeta_jobs_active")
	}
}
