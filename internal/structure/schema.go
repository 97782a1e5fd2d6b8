package structure

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/kalambet/vitae/internal/records"
)

// SchemaName names the response format sent to providers that want one.
const SchemaName = "resume"

// The contract types mirror records.Structured with pointer strings so a
// missing key can be told apart from an empty value.
type resumeContract struct {
	Experience []experienceContract `json:"experience" validate:"required,dive"`
	Projects   []projectContract    `json:"projects" validate:"required,dive"`
}

type experienceContract struct {
	Role         *string  `json:"role" validate:"required" jsonschema:"description=Job title as written"`
	Organization *string  `json:"organization" validate:"required"`
	Location     *string  `json:"location" validate:"required"`
	DateRange    *string  `json:"date_range" validate:"required" jsonschema:"description=Free-text date range such as Jun 2024 – Aug 2024"`
	Achievements []string `json:"achievements" validate:"required" jsonschema:"description=One entry per bullet point"`
}

type projectContract struct {
	ProjectName *string  `json:"project_name" validate:"required"`
	Role        *string  `json:"role" validate:"required"`
	DateRange   *string  `json:"date_range" validate:"required"`
	Details     []string `json:"details" validate:"required" jsonschema:"description=One entry per bullet point"`
}

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
	schemaMap  map[string]any

	validate = validator.New(validator.WithRequiredStructEnabled())
)

func buildSchema() {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&resumeContract{})
	s.Version = ""
	s.ID = ""

	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("structure: marshaling resume schema: %v", err))
	}
	schemaJSON = data
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		panic(fmt.Sprintf("structure: decoding resume schema: %v", err))
	}
}

// Schema returns the JSON Schema every provider response must satisfy:
// both groups and every field required, no additional properties.
func Schema() json.RawMessage {
	schemaOnce.Do(buildSchema)
	return schemaJSON
}

// SchemaMap returns Schema decoded into a generic map for SDKs that take
// the schema as a value rather than raw bytes.
func SchemaMap() map[string]any {
	schemaOnce.Do(buildSchema)
	return schemaMap
}

// Decode parses a provider response, unwrapping Markdown code fences, and
// checks it against the contract. Nested achievements and details arrays
// that are present but contain nulls decode as empty strings.
func Decode(raw string) (records.Structured, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return records.Structured{}, fmt.Errorf("empty response")
	}

	var c resumeContract
	if err := json.Unmarshal([]byte(cleaned), &c); err != nil {
		return records.Structured{}, fmt.Errorf("decoding response: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return records.Structured{}, fmt.Errorf("response violates contract: %w", err)
	}

	out := records.Structured{
		Experience: make([]records.Experience, 0, len(c.Experience)),
		Projects:   make([]records.Project, 0, len(c.Projects)),
	}
	for _, e := range c.Experience {
		out.Experience = append(out.Experience, records.Experience{
			Role:         *e.Role,
			Organization: *e.Organization,
			Location:     *e.Location,
			DateRange:    *e.DateRange,
			Achievements: e.Achievements,
		})
	}
	for _, p := range c.Projects {
		out.Projects = append(out.Projects, records.Project{
			ProjectName: *p.ProjectName,
			Role:        *p.Role,
			DateRange:   *p.DateRange,
			Details:     p.Details,
		})
	}
	return out, nil
}

// cleanJSON strips a surrounding ``` or ```json fence some models emit
// despite being asked for bare JSON.
func cleanJSON(s string) string {
	clean := strings.TrimSpace(s)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}
