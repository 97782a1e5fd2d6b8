package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/kalambet/vitae/internal/ingest"
)

var errNoFile = errors.New("no file in form")

// formFile reads the "file" field of a multipart request, bounded by the
// configured upload size.
func formFile(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		return "", nil, err
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, errNoFile
	}
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	data, err := readPart(f, limit)
	if err != nil {
		return "", nil, err
	}
	return hdr.Filename, data, nil
}

func readPart(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func handleResumeParsing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := formFile(w, r, deps.MaxUploadBytes)
		switch {
		case isTooLarge(err):
			httpError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		case err != nil:
			slog.Info("resume upload without file", "error", err)
			httpError(w, http.StatusBadRequest, "No file provided")
			return
		}

		slog.Info("processing resume", "file", name, "bytes", len(data))
		res, err := deps.Ingester.Run(r.Context(), ingest.Upload{Name: name, Data: data})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Error processing file",
				"details": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := formFile(w, r, deps.MaxUploadBytes)
		switch {
		case isTooLarge(err):
			httpError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		case err != nil:
			httpError(w, http.StatusBadRequest, "No files received.")
			return
		}

		stored, err := deps.Uploads.Save(r.Context(), name, bytes.NewReader(data))
		if err != nil {
			slog.Error("upload failed", "file", name, "backend", deps.Uploads.Backend(), "error", err)
			httpError(w, http.StatusInternalServerError, "Upload failed: "+err.Error())
			return
		}

		slog.Info("stored upload", "file", stored, "backend", deps.Uploads.Backend())
		writeJSON(w, http.StatusCreated, map[string]string{
			"message":  "Success",
			"filename": stored,
		})
	}
}
