package records

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 16

// ExperienceFingerprint derives a stable identifier from the fields that
// SameExperience compares. Duplicates always share a fingerprint.
func ExperienceFingerprint(e Experience) string {
	return digest("experience", []any{e.Role, e.Organization, e.Location, e.DateRange, lines(e.Achievements)})
}

// ProjectFingerprint derives a stable identifier from the fields that
// SameProject compares.
func ProjectFingerprint(p Project) string {
	return digest("project", []any{p.ProjectName, p.Role, p.DateRange, lines(p.Details)})
}

// lines maps nil to an empty slice; SameExperience treats them as equal.
func lines(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func digest(kind string, fields []any) string {
	// A JSON array keeps field boundaries unambiguous.
	b, _ := json.Marshal(append([]any{kind}, fields...))
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Identified pairs a record with its fingerprint for API responses.
type Identified[T Record] struct {
	ID     string `json:"id"`
	Record T      `json:"record"`
}

// IdentifyExperiences attaches fingerprints to each experience.
func IdentifyExperiences(exps []Experience) []Identified[Experience] {
	out := make([]Identified[Experience], len(exps))
	for i, e := range exps {
		out[i] = Identified[Experience]{ID: ExperienceFingerprint(e), Record: e}
	}
	return out
}

// IdentifyProjects attaches fingerprints to each project.
func IdentifyProjects(projs []Project) []Identified[Project] {
	out := make([]Identified[Project], len(projs))
	for i, p := range projs {
		out[i] = Identified[Project]{ID: ProjectFingerprint(p), Record: p}
	}
	return out
}
