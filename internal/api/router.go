// Package api exposes the record store over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/vitae/internal/ingest"
	"github.com/kalambet/vitae/internal/metrics"
	"github.com/kalambet/vitae/internal/storage"
	"github.com/kalambet/vitae/internal/store"
	"github.com/kalambet/vitae/internal/uploads"
)

const maxRequestBodySize = 1 << 20 // 1MB

// multipartOverhead is allowed on top of the file size for form boundaries
// and headers.
const multipartOverhead = 1 << 20

// Ingester runs the resume pipeline for one upload.
type Ingester interface {
	Run(ctx context.Context, up ingest.Upload) (ingest.Result, error)
}

// HistoryReader reads recorded pipeline runs.
type HistoryReader interface {
	ListIngestions(limit, offset int) ([]storage.Ingestion, error)
	GetIngestion(id string) (storage.Ingestion, error)
}

// Deps holds everything the HTTP handlers need. History and Metrics are
// optional.
type Deps struct {
	Ingester       Ingester
	Store          *store.Store
	Uploads        uploads.Sink
	History        HistoryReader
	Metrics        *metrics.Collector
	Token          string
	MaxUploadBytes int64
	Now            func() time.Time
}

// NewHandler returns the application router. /health and /metrics are
// served without authentication.
func NewHandler(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}

	r := chi.NewRouter()
	r.Use(deps.Metrics.Middleware)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/resume-parsing", handleResumeParsing(deps))
		r.Post("/upload", handleUpload(deps))

		r.Post("/experience/delete", handleDeleteExperience(deps))
		r.Post("/project/delete", handleDeleteProject(deps))

		r.Get("/data/experiences.json", handleDataExperiences(deps))
		r.Get("/data/projects.json", handleDataProjects(deps))

		r.Get("/experiences", handleListExperiences(deps))
		r.Get("/projects", handleListProjects(deps))
		r.Delete("/experiences/{id}", handleDeleteExperienceByID(deps))
		r.Delete("/projects/{id}", handleDeleteProjectByID(deps))
		r.Get("/search", handleSearch(deps))

		r.Get("/ingestions", handleListIngestions(deps))
		r.Get("/ingestions/{id}", handleGetIngestion(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
