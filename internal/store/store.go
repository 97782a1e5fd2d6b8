package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kalambet/vitae/internal/records"
)

// Collection file names inside the records directory.
const (
	ExperiencesFile = "experiences.json"
	ProjectsFile    = "projects.json"
)

// Store is the JSON-file home of the experience and project collections.
// There is no in-memory cache: every call reads the file again.
type Store struct {
	dir         string
	Experiences *Collection[records.Experience]
	Projects    *Collection[records.Project]
}

// New returns a Store rooted at dir without touching the filesystem.
func New(dir string) *Store {
	return &Store{
		dir:         dir,
		Experiences: newCollection[records.Experience]("experiences", filepath.Join(dir, ExperiencesFile)),
		Projects:    newCollection[records.Project]("projects", filepath.Join(dir, ProjectsFile)),
	}
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	s := New(dir)
	if err := s.EnsureStorage(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the records directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureStorage creates the records directory if it does not exist.
func (s *Store) EnsureStorage() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating records directory: %w", err)
	}
	return nil
}

// DeleteExperiences removes every experience matching target's role,
// organization and date range.
func (s *Store) DeleteExperiences(target records.DeleteExperience) (int, error) {
	return s.Experiences.DeleteWhere(func(e records.Experience) bool {
		return records.MatchesExperience(target, e)
	})
}

// DeleteProjects removes every project matching target's name, role and
// date range.
func (s *Store) DeleteProjects(target records.DeleteProject) (int, error) {
	return s.Projects.DeleteWhere(func(p records.Project) bool {
		return records.MatchesProject(target, p)
	})
}

// DeleteExperienceByID removes every experience whose fingerprint is id.
func (s *Store) DeleteExperienceByID(id string) (int, error) {
	return s.Experiences.DeleteWhere(func(e records.Experience) bool {
		return records.ExperienceFingerprint(e) == id
	})
}

// DeleteProjectByID removes every project whose fingerprint is id.
func (s *Store) DeleteProjectByID(id string) (int, error) {
	return s.Projects.DeleteWhere(func(p records.Project) bool {
		return records.ProjectFingerprint(p) == id
	})
}

// Collection is one JSON array file of records. Mutating operations hold mu
// for the whole read-modify-write cycle so that concurrent requests
// serialize instead of overwriting each other.
type Collection[T records.Record] struct {
	name   string
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

func newCollection[T records.Record](name, path string) *Collection[T] {
	return &Collection[T]{name: name, path: path, logger: slog.Default()}
}

// Name returns the logical collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Path returns the backing file path.
func (c *Collection[T]) Path() string {
	return c.path
}

// ReadAll returns every stored record in insertion order. A missing file
// yields an empty slice. An unreadable or malformed file also yields an
// empty slice; that case is logged because the next write will replace
// whatever the file held.
func (c *Collection[T]) ReadAll() []T {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}
	}
	if err != nil {
		c.logger.Warn("collection unreadable, treating as empty", "collection", c.name, "path", c.path, "error", err)
		return []T{}
	}

	var recs []T
	if err := json.Unmarshal(data, &recs); err != nil {
		c.logger.Warn("collection malformed, treating as empty", "collection", c.name, "path", c.path, "error", err)
		return []T{}
	}
	if recs == nil {
		recs = []T{}
	}
	return recs
}

// WriteAll replaces the file contents with recs, pretty-printed with
// two-space indentation. The data goes to a temporary file in the same
// directory which is then renamed over the target.
func (c *Collection[T]) WriteAll(recs []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(recs)
}

// AppendUnique appends every candidate that has no duplicate under same,
// checking against the stored records and the candidates accepted before it.
// It returns the accepted records and the number of dropped duplicates.
// Nothing is written when no candidate is accepted.
func (c *Collection[T]) AppendUnique(candidates []T, same func(a, b T) bool) ([]T, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.ReadAll()
	accepted := make([]T, 0, len(candidates))
	dupes := 0
	for _, cand := range candidates {
		if !records.IsUnique(cand, existing, same) {
			dupes++
			continue
		}
		existing = append(existing, cand)
		accepted = append(accepted, cand)
	}

	if len(accepted) == 0 {
		return accepted, dupes, nil
	}
	if err := c.writeLocked(existing); err != nil {
		return nil, dupes, err
	}
	return accepted, dupes, nil
}

// DeleteWhere removes every record for which match returns true and writes
// the remainder back, even when nothing matched. It returns the number of
// records removed.
func (c *Collection[T]) DeleteWhere(match func(T) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.ReadAll()
	kept := make([]T, 0, len(existing))
	for _, r := range existing {
		if !match(r) {
			kept = append(kept, r)
		}
	}

	if err := c.writeLocked(kept); err != nil {
		return 0, err
	}
	return len(existing) - len(kept), nil
}

func (c *Collection[T]) writeLocked(recs []T) error {
	if recs == nil {
		recs = []T{}
	}
	data, err := Encode(recs)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", c.name, err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating records directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", c.name, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", c.name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting mode on %s: %w", c.name, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("replacing %s: %w", c.path, err)
	}
	return nil
}

// Encode renders v the way JSON.stringify(v, null, 2) does: two-space
// indentation, no HTML escaping, raw U+2028/U+2029 and no trailing newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeSeparators turns the \u2028 and \u2029 escapes encoding/json always
// emits back into raw characters, which JSON.stringify leaves unescaped.
// An escape counts only when it is preceded by an even run of backslashes.
func unescapeSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && string(b[i+1:i+5]) == "u202" && (b[i+5] == '8' || b[i+5] == '9') {
			if b[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Copy any other escape whole so an escaped backslash is never
		// mistaken for the start of a separator escape.
		out = append(out, b[i])
		if i+1 < len(b) {
			i++
			out = append(out, b[i])
		}
	}
	return out
}
