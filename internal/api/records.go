package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/vitae/internal/metrics"
	"github.com/kalambet/vitae/internal/records"
	"github.com/kalambet/vitae/internal/search"
	"github.com/kalambet/vitae/internal/store"
)

// Legacy delete endpoints answer every failure, including a bad body, with
// 500 and a fixed message.
func handleDeleteExperience(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var target records.DeleteExperience
		if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
			slog.Error("deleting experience", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to delete experience")
			return
		}

		n, err := deps.Store.DeleteExperiences(target)
		if err != nil {
			slog.Error("deleting experience", "role", target.Role, "organization", target.Organization, "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to delete experience")
			return
		}
		deps.Metrics.Deleted(metrics.KindExperience, n)
		slog.Info("deleted experiences", "role", target.Role, "organization", target.Organization, "count", n)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleDeleteProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var target records.DeleteProject
		if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
			slog.Error("deleting project", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to delete project")
			return
		}

		n, err := deps.Store.DeleteProjects(target)
		if err != nil {
			slog.Error("deleting project", "project_name", target.ProjectName, "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to delete project")
			return
		}
		deps.Metrics.Deleted(metrics.KindProject, n)
		slog.Info("deleted projects", "project_name", target.ProjectName, "count", n)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// writeData serves a collection exactly as it is laid out on disk.
func writeData(w http.ResponseWriter, v any) {
	data, err := store.Encode(v)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to encode records")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func handleDataExperiences(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, deps.Store.Experiences.ReadAll())
	}
}

func handleDataProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, deps.Store.Projects.ReadAll())
	}
}

func handleListExperiences(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exps := deps.Store.Experiences.ReadAll()
		switch r.URL.Query().Get("group") {
		case "":
			writeJSON(w, http.StatusOK, records.IdentifyExperiences(exps))
		case "time":
			writeJSON(w, http.StatusOK, records.GroupByUploadTime(exps, deps.Now()))
		default:
			httpError(w, http.StatusBadRequest, "group must be \"time\"")
		}
	}
}

func handleListProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, records.IdentifyProjects(deps.Store.Projects.ReadAll()))
	}
}

func handleDeleteExperienceByID(deps Deps) http.HandlerFunc {
	return deleteByID(deps, metrics.KindExperience, deps.Store.DeleteExperienceByID)
}

func handleDeleteProjectByID(deps Deps) http.HandlerFunc {
	return deleteByID(deps, metrics.KindProject, deps.Store.DeleteProjectByID)
}

func deleteByID(deps Deps, kind string, del func(id string) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		n, err := del(id)
		if err != nil {
			slog.Error("deleting record", "kind", kind, "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "failed to delete "+kind)
			return
		}
		if n == 0 {
			httpError(w, http.StatusNotFound, kind+" not found")
			return
		}
		deps.Metrics.Deleted(kind, n)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch r.URL.Query().Get("kind") {
		case "", metrics.KindExperience:
			writeJSON(w, http.StatusOK, search.Experiences(q, deps.Store.Experiences.ReadAll()))
		case metrics.KindProject:
			writeJSON(w, http.StatusOK, search.Projects(q, deps.Store.Projects.ReadAll()))
		default:
			httpError(w, http.StatusBadRequest, "kind must be experience or project")
		}
	}
}
