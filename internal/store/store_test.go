package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kalambet/vitae/internal/records"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func exp(role, location string) records.Experience {
	return records.Experience{
		Role:         role,
		Organization: "Acme",
		Location:     location,
		DateRange:    "2023",
		Achievements: []string{"Shipped reports"},
		UploadedAt:   "2024-06-01T10:00:00.000Z",
	}
}

func TestEnsureStorage_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s := New(dir)

	for i := 0; i < 2; i++ {
		if err := s.EnsureStorage(); err != nil {
			t.Fatalf("EnsureStorage call %d: %v", i+1, err)
		}
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("records directory not created: %v", err)
	}
}

func TestReadAll_MissingFile(t *testing.T) {
	s := openTestStore(t)

	got := s.Experiences.ReadAll()
	if got == nil || len(got) != 0 {
		t.Errorf("ReadAll() = %#v, want empty non-nil slice", got)
	}
}

func TestReadAll_MalformedFile(t *testing.T) {
	s := openTestStore(t)
	if err := os.WriteFile(s.Projects.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := s.Projects.ReadAll(); len(got) != 0 {
		t.Errorf("ReadAll() on malformed file returned %d records, want 0", len(got))
	}
}

func TestReadAll_NullFile(t *testing.T) {
	s := openTestStore(t)
	if err := os.WriteFile(s.Projects.Path(), []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := s.Projects.ReadAll()
	if got == nil || len(got) != 0 {
		t.Errorf("ReadAll() = %#v, want empty non-nil slice", got)
	}
}

func TestWriteAll_PrettyPrinted(t *testing.T) {
	s := openTestStore(t)

	if err := s.Projects.WriteAll([]records.Project{{
		ProjectName: "R&D <tools>",
		Role:        "Dev",
		DateRange:   "2024",
		Details:     []string{"Go"},
	}}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, err := os.ReadFile(s.Projects.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := `[
  {
    "project_name": "R&D <tools>",
    "role": "Dev",
    "date_range": "2024",
    "details": [
      "Go"
    ]
  }
]`
	if string(data) != want {
		t.Errorf("file contents =\n%s\nwant\n%s", data, want)
	}
}

func TestWriteAll_NilWritesEmptyArray(t *testing.T) {
	s := openTestStore(t)
	if err := s.Experiences.WriteAll(nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	data, _ := os.ReadFile(s.Experiences.Path())
	if string(data) != "[]" {
		t.Errorf("file contents = %q, want %q", data, "[]")
	}
}

func TestWriteAll_LeavesNoTempFiles(t *testing.T) {
	s := openTestStore(t)
	if err := s.Experiences.WriteAll([]records.Experience{exp("Analyst", "Boston")}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != ExperiencesFile {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory entries = %v, want only %s", names, ExperiencesFile)
	}
}

// TestRoundTrip verifies WriteAll(ReadAll()) does not change the file bytes.
func TestRoundTrip(t *testing.T) {
	s := openTestStore(t)

	// Shaped like a file written by the Next.js app that shares this format.
	legacy := `[
  {
    "role": "Summer Analyst – Business Intelligence",
    "organization": "Goldman Sachs",
    "location": "Salt Lake City, Utah",
    "date_range": "Jun 2024 – Aug 2024",
    "achievements": [
      "Reduced manual workload by 120 hours annually",
      "Built Tableau & AWS dashboards"
    ],
    "uploaded_at": "2024-09-01T17:03:11.512Z"
  },
  {
    "role": "Intern",
    "organization": "Café <Lab>",
    "location": "",
    "date_range": "2023",
    "achievements": []
  }
]`
	if err := os.WriteFile(s.Experiences.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Experiences.WriteAll(s.Experiences.ReadAll()); err != nil {
			t.Fatalf("WriteAll: %v", err)
		}
		data, err := os.ReadFile(s.Experiences.Path())
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != legacy {
			t.Fatalf("round trip %d changed the file:\n%s", i+1, data)
		}
	}
}

func TestAppendUnique_DropsDuplicates(t *testing.T) {
	s := openTestStore(t)
	if err := s.Experiences.WriteAll([]records.Experience{exp("Analyst", "Boston")}); err != nil {
		t.Fatal(err)
	}

	dup := exp("Analyst", "Boston")
	dup.UploadedAt = "2025-01-01T00:00:00.000Z"

	accepted, dupes, err := s.Experiences.AppendUnique([]records.Experience{dup}, records.SameExperience)
	if err != nil {
		t.Fatalf("AppendUnique: %v", err)
	}
	if len(accepted) != 0 || dupes != 1 {
		t.Errorf("accepted=%d dupes=%d, want 0 and 1", len(accepted), dupes)
	}
	if got := s.Experiences.ReadAll(); len(got) != 1 {
		t.Errorf("collection size = %d, want 1", len(got))
	}
}

func TestAppendUnique_DedupsWithinBatch(t *testing.T) {
	s := openTestStore(t)

	batch := []records.Experience{exp("Analyst", "Boston"), exp("Analyst", "Boston"), exp("Analyst", "Remote")}
	accepted, dupes, err := s.Experiences.AppendUnique(batch, records.SameExperience)
	if err != nil {
		t.Fatalf("AppendUnique: %v", err)
	}
	if len(accepted) != 2 || dupes != 1 {
		t.Errorf("accepted=%d dupes=%d, want 2 and 1", len(accepted), dupes)
	}

	got := s.Experiences.ReadAll()
	if len(got) != 2 || got[0].Location != "Boston" || got[1].Location != "Remote" {
		t.Errorf("stored = %+v, want Boston then Remote", got)
	}
}

func TestAppendUnique_NoWriteWhenNothingAccepted(t *testing.T) {
	s := openTestStore(t)

	if _, _, err := s.Projects.AppendUnique(nil, records.SameProject); err != nil {
		t.Fatalf("AppendUnique: %v", err)
	}
	if _, err := os.Stat(s.Projects.Path()); !os.IsNotExist(err) {
		t.Errorf("projects file exists after empty append: %v", err)
	}
}

// TestDeleteExperiences_BulkMatch deletes by role, organization and date
// range and expects every location variant to go.
func TestDeleteExperiences_BulkMatch(t *testing.T) {
	s := openTestStore(t)
	other := exp("Engineer", "Berlin")
	if err := s.Experiences.WriteAll([]records.Experience{exp("Analyst", "Boston"), other, exp("Analyst", "Remote")}); err != nil {
		t.Fatal(err)
	}

	target := records.DeleteExperience{Role: "Analyst", Organization: "Acme", DateRange: "2023"}
	n, err := s.DeleteExperiences(target)
	if err != nil {
		t.Fatalf("DeleteExperiences: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	got := s.Experiences.ReadAll()
	if len(got) != 1 || got[0].Role != "Engineer" {
		t.Errorf("remaining = %+v, want only the Engineer entry", got)
	}
	for _, e := range got {
		if records.MatchesExperience(target, e) {
			t.Errorf("record %+v still matches the delete target", e)
		}
	}
}

func TestDeleteProjects_NoMatchStillWrites(t *testing.T) {
	s := openTestStore(t)

	n, err := s.DeleteProjects(records.DeleteProject{ProjectName: "ghost"})
	if err != nil {
		t.Fatalf("DeleteProjects: %v", err)
	}
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
	data, err := os.ReadFile(s.Projects.Path())
	if err != nil {
		t.Fatalf("projects file not written: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("file = %q, want %q", data, "[]")
	}
}

func TestDeleteExperienceByID_UsesDedupComparator(t *testing.T) {
	s := openTestStore(t)
	boston := exp("Analyst", "Boston")
	if err := s.Experiences.WriteAll([]records.Experience{boston, exp("Analyst", "Remote")}); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteExperienceByID(records.ExperienceFingerprint(boston))
	if err != nil {
		t.Fatalf("DeleteExperienceByID: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	got := s.Experiences.ReadAll()
	if len(got) != 1 || got[0].Location != "Remote" {
		t.Errorf("remaining = %+v, want the Remote entry", got)
	}
}

func TestDeleteProjectByID(t *testing.T) {
	s := openTestStore(t)
	p := records.Project{ProjectName: "Tracker", Role: "Lead", DateRange: "2022", Details: []string{"Go"}}
	if err := s.Projects.WriteAll([]records.Project{p}); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteProjectByID(records.ProjectFingerprint(p))
	if err != nil || n != 1 {
		t.Fatalf("DeleteProjectByID = (%d, %v), want (1, nil)", n, err)
	}
	if got := s.Projects.ReadAll(); len(got) != 0 {
		t.Errorf("remaining = %d, want 0", len(got))
	}
}

// TestConcurrentAppends checks that parallel read-modify-write cycles on the
// same collection do not lose records.
func TestConcurrentAppends(t *testing.T) {
	s := openTestStore(t)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := records.Project{ProjectName: fmt.Sprintf("p-%d", i), Details: []string{}}
			if _, _, err := s.Projects.AppendUnique([]records.Project{p}, records.SameProject); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AppendUnique: %v", err)
	}

	if got := s.Projects.ReadAll(); len(got) != writers {
		t.Errorf("stored %d projects, want %d", len(got), writers)
	}
}

func TestRoundTrip_LineSeparators(t *testing.T) {
	s := openTestStore(t)

	// JSON.stringify leaves U+2028 and U+2029 raw. The second entry holds
	// the literal text \u2028, which must stay escaped as \\u2028.
	legacy := "[\n  {\n    \"project_name\": \"Dev\u2028x\",\n    \"role\": \"a\u2029b\",\n" +
		"    \"date_range\": \"2024\",\n    \"details\": []\n  },\n  {\n" +
		"    \"project_name\": \"C:\\\\u2028\",\n    \"role\": \"\",\n    \"date_range\": \"\",\n    \"details\": []\n  }\n]"
	if err := os.WriteFile(s.Projects.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	got := s.Projects.ReadAll()
	if len(got) != 2 || got[0].ProjectName != "Dev\u2028x" || got[1].ProjectName != `C:\u2028` {
		t.Fatalf("ReadAll() = %+v", got)
	}
	if err := s.Projects.WriteAll(got); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, err := os.ReadFile(s.Projects.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != legacy {
		t.Errorf("round trip changed the file:\n%q\nwant\n%q", data, legacy)
	}
}

func TestEncode_SeparatorEscapes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a\u2028b", "\"a\u2028b\""},
		{"a\u2029b", "\"a\u2029b\""},
		{`a\u2028b`, `"a\\u2028b"`},
		{`a\` + "\u2028", "\"a\\\\\u2028\""},
		{"plain", `"plain"`},
	}
	for _, tt := range tests {
		got, err := Encode(tt.in)
		if err != nil {
			t.Fatalf("Encode(%q): %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Errorf("Encode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
