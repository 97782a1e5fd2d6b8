// Package ingest runs the resume pipeline: extract text from an upload,
// structure it into records and append the unique ones to the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/vitae/internal/extract"
	"github.com/kalambet/vitae/internal/metrics"
	"github.com/kalambet/vitae/internal/records"
	"github.com/kalambet/vitae/internal/storage"
	"github.com/kalambet/vitae/internal/store"
	"github.com/kalambet/vitae/internal/structure"
)

// ErrExtractionEmpty is returned when the extractor produced no text.
var ErrExtractionEmpty = errors.New("no text could be extracted from the file")

// Structurer turns extracted text into records. It never fails; problems
// are reported through the result status.
type Structurer interface {
	Structure(ctx context.Context, text string) structure.Result
	Provider() string
}

// HistoryStore records pipeline runs.
type HistoryStore interface {
	SaveIngestion(in storage.Ingestion) error
}

// Upload is one file received from a client.
type Upload struct {
	Name string
	Data []byte
}

// Counts holds a per-kind record count.
type Counts struct {
	Experiences int `json:"experiences"`
	Projects    int `json:"projects"`
}

// Structuring reports whether the model output was used.
type Structuring struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Result is returned to the client after a successful run.
type Result struct {
	FileName          string             `json:"fileName"`
	FileSize          int64              `json:"fileSize"`
	RawContent        string             `json:"rawContent"`
	StructuredContent records.Structured `json:"structuredContent"`
	Structuring       Structuring        `json:"structuring"`
	Stored            Counts             `json:"stored"`
	Duplicates        Counts             `json:"duplicates"`
	IngestionID       string             `json:"ingestionId"`
}

// Options configures a Pipeline. History and Metrics are optional.
type Options struct {
	Extractor     extract.Extractor
	ExtractorName string
	Structurer    Structurer
	Store         *store.Store
	History       HistoryStore
	Metrics       *metrics.Collector
	TmpDir        string
	Now           func() time.Time
}

// Pipeline processes uploads one at a time per call; concurrent calls are
// safe because the store serializes writes per collection.
type Pipeline struct {
	extractor     extract.Extractor
	extractorName string
	structurer    Structurer
	store         *store.Store
	history       HistoryStore
	metrics       *metrics.Collector
	tmpDir        string
	now           func() time.Time
	logger        *slog.Logger
}

// New creates a Pipeline with the given dependencies.
func New(opts Options) *Pipeline {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	name := opts.ExtractorName
	if name == "" {
		name = "local"
	}
	return &Pipeline{
		extractor:     opts.Extractor,
		extractorName: name,
		structurer:    opts.Structurer,
		store:         opts.Store,
		history:       opts.History,
		metrics:       opts.Metrics,
		tmpDir:        opts.TmpDir,
		now:           now,
		logger:        slog.Default(),
	}
}

// Run ingests one upload. Structuring problems do not fail the run; the
// result then carries empty groups and a degraded status.
func (p *Pipeline) Run(ctx context.Context, up Upload) (Result, error) {
	start := p.now()
	run := storage.Ingestion{
		ID:        uuid.New().String(),
		CreatedAt: start.UTC(),
		FileName:  up.Name,
		FileSize:  int64(len(up.Data)),
		Extractor: p.extractorName,
		Provider:  p.structurer.Provider(),
	}

	res, err := p.run(ctx, up, &run)
	run.DurationMS = p.now().Sub(start).Milliseconds()
	if err != nil {
		run.Status = storage.StatusFailed
		run.Error = err.Error()
		p.logger.Error("ingestion failed", "file", up.Name, "error", err)
	} else {
		run.Status = storage.StatusCompleted
		res.IngestionID = run.ID
	}
	p.metrics.Ingestion(run.Status, p.now().Sub(start))
	p.record(run)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, up Upload, run *storage.Ingestion) (Result, error) {
	text, err := p.extractText(ctx, up)
	if err != nil {
		return Result{}, err
	}

	sr := p.structurer.Structure(ctx, text)
	run.StructuringStatus = sr.Status
	run.StructuringReason = sr.Reason
	if sr.Degraded() {
		p.metrics.StructuringDegraded()
	}

	content := sr.Content.Normalize()
	uploadedAt := records.FormatUploadedAt(p.now())
	for i := range content.Experience {
		content.Experience[i].UploadedAt = uploadedAt
	}
	run.ExperiencesFound = len(content.Experience)
	run.ProjectsFound = len(content.Projects)

	var stored, dupes Counts
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		accepted, n, err := p.store.Experiences.AppendUnique(content.Experience, records.SameExperience)
		if err != nil {
			return fmt.Errorf("storing experiences: %w", err)
		}
		stored.Experiences, dupes.Experiences = len(accepted), n
		return nil
	})
	g.Go(func() error {
		accepted, n, err := p.store.Projects.AppendUnique(content.Projects, records.SameProject)
		if err != nil {
			return fmt.Errorf("storing projects: %w", err)
		}
		stored.Projects, dupes.Projects = len(accepted), n
		return nil
	})
	err = g.Wait()

	run.ExperiencesStored, run.ProjectsStored = stored.Experiences, stored.Projects
	run.ExperiencesDuplicate, run.ProjectsDuplicate = dupes.Experiences, dupes.Projects
	p.metrics.Stored(metrics.KindExperience, stored.Experiences)
	p.metrics.Stored(metrics.KindProject, stored.Projects)
	p.metrics.Duplicates(metrics.KindExperience, dupes.Experiences)
	p.metrics.Duplicates(metrics.KindProject, dupes.Projects)
	if err != nil {
		return Result{}, err
	}

	p.logger.Info("ingested resume", "file", up.Name,
		"structuring", sr.Status,
		"experiences_stored", stored.Experiences, "projects_stored", stored.Projects,
		"duplicates", dupes.Experiences+dupes.Projects)

	return Result{
		FileName:          up.Name,
		FileSize:          int64(len(up.Data)),
		RawContent:        text,
		StructuredContent: content,
		Structuring:       Structuring{Status: sr.Status, Reason: sr.Reason},
		Stored:            stored,
		Duplicates:        dupes,
	}, nil
}

// extractText writes the upload to a temp file, keeping its extension so
// the extractor can pick a format, and removes it once extraction is done.
func (p *Pipeline) extractText(ctx context.Context, up Upload) (string, error) {
	ext := strings.ToLower(filepath.Ext(up.Name))
	tmp, err := os.CreateTemp(p.tmpDir, "vitae-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(up.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", up.Name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrExtractionEmpty
	}
	return text, nil
}

func (p *Pipeline) record(run storage.Ingestion) {
	if p.history == nil {
		return
	}
	if err := p.history.SaveIngestion(run); err != nil {
		p.logger.Warn("could not record ingestion", "id", run.ID, "error", err)
	}
}
