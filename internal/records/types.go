package records

import "time"

// UploadedAtLayout matches JavaScript's Date.toISOString output.
const UploadedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatUploadedAt renders t in UTC using UploadedAtLayout.
func FormatUploadedAt(t time.Time) string {
	return t.UTC().Format(UploadedAtLayout)
}

// Experience is one work-experience entry extracted from a resume.
type Experience struct {
	Role         string   `json:"role"`
	Organization string   `json:"organization"`
	Location     string   `json:"location"`
	DateRange    string   `json:"date_range"`
	Achievements []string `json:"achievements"`
	// UploadedAt is an ISO-8601 timestamp set at ingestion time. It is kept
	// as text so that stored files round-trip byte for byte.
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// Project is one project entry extracted from a resume.
type Project struct {
	ProjectName string   `json:"project_name"`
	Role        string   `json:"role"`
	DateRange   string   `json:"date_range"`
	Details     []string `json:"details"`
}

// Structured is the two-group document produced by the structuring step.
type Structured struct {
	Experience []Experience `json:"experience"`
	Projects   []Project    `json:"projects"`
}

// Empty returns a Structured value with both groups present and empty.
func Empty() Structured {
	return Structured{Experience: []Experience{}, Projects: []Project{}}
}

// Normalize replaces nil slices with empty ones so the value encodes as
// arrays rather than null.
func (s Structured) Normalize() Structured {
	if s.Experience == nil {
		s.Experience = []Experience{}
	}
	if s.Projects == nil {
		s.Projects = []Project{}
	}
	for i := range s.Experience {
		if s.Experience[i].Achievements == nil {
			s.Experience[i].Achievements = []string{}
		}
	}
	for i := range s.Projects {
		if s.Projects[i].Details == nil {
			s.Projects[i].Details = []string{}
		}
	}
	return s
}

// DeleteExperience carries the fields used to select experiences for removal.
// Any other fields in a request body are ignored.
type DeleteExperience struct {
	Role         string `json:"role"`
	Organization string `json:"organization"`
	DateRange    string `json:"date_range"`
}

// DeleteProject carries the fields used to select projects for removal.
type DeleteProject struct {
	ProjectName string `json:"project_name"`
	Role        string `json:"role"`
	DateRange   string `json:"date_range"`
}
