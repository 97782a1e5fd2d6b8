package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/vitae/internal/storage"
)

func handleListIngestions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			writeJSON(w, http.StatusOK, []storage.Ingestion{})
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		runs, err := deps.History.ListIngestions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list ingestions: "+err.Error())
			return
		}
		if runs == nil {
			runs = []storage.Ingestion{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetIngestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "ingestion not found")
			return
		}
		run, err := deps.History.GetIngestion(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "ingestion not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get ingestion: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}
