package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestCounters(t *testing.T) {
	c := New()
	c.Ingestion("completed", 2*time.Second)
	c.Ingestion("failed", time.Second)
	c.Stored(KindExperience, 3)
	c.Duplicates(KindProject, 2)
	c.Deleted(KindExperience, 1)
	c.StructuringDegraded()
	c.Stored(KindProject, 0)

	body := scrape(t, c)
	for _, want := range []string{
		`vitae_ingestions_total{status="completed"} 1`,
		`vitae_ingestions_total{status="failed"} 1`,
		`vitae_records_stored_total{kind="experience"} 3`,
		`vitae_records_duplicate_total{kind="project"} 2`,
		`vitae_records_deleted_total{kind="experience"} 1`,
		`vitae_structuring_degraded_total 1`,
		`vitae_ingestion_duration_seconds_count 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(body, `vitae_records_stored_total{kind="project"}`) {
		t.Error("zero additions should not create a series")
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Ingestion("completed", time.Second)
	c.Stored(KindExperience, 1)
	c.Duplicates(KindExperience, 1)
	c.Deleted(KindExperience, 1)
	c.StructuringDegraded()

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want passthrough", rec.Code)
	}

	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}

func TestMiddleware_RoutePattern(t *testing.T) {
	c := New()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Delete("/experiences/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a1", "b2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/experiences/"+id, nil))
	}

	body := scrape(t, c)
	want := `vitae_http_requests_total{method="DELETE",route="/experiences/{id}",status="404"} 2`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %q", want)
	}
}
