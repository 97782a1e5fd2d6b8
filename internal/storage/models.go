package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Ingestion outcomes.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Ingestion is one run of the resume pipeline.
type Ingestion struct {
	ID                   string    `json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	FileName             string    `json:"file_name"`
	FileSize             int64     `json:"file_size"`
	Extractor            string    `json:"extractor"`
	Provider             string    `json:"provider"`
	Status               string    `json:"status"`
	StructuringStatus    string    `json:"structuring_status,omitempty"`
	StructuringReason    string    `json:"structuring_reason,omitempty"`
	ExperiencesFound     int       `json:"experiences_found"`
	ProjectsFound        int       `json:"projects_found"`
	ExperiencesStored    int       `json:"experiences_stored"`
	ProjectsStored       int       `json:"projects_stored"`
	ExperiencesDuplicate int       `json:"experiences_duplicate"`
	ProjectsDuplicate    int       `json:"projects_duplicate"`
	Error                string    `json:"error,omitempty"`
	DurationMS           int64     `json:"duration_ms"`
}
