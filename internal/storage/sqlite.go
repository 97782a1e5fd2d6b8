package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the ingestion history.
type Store struct {
	db *sql.DB
}

// pragmas are applied to every connection. The history database sees one
// writer, so a single connection with WAL keeps readers unblocked.
var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
}

// Open opens or creates vitae.db in dataDir and applies pending migrations.
// ":memory:" selects an in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "vitae.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded migrations/NNN_*.sql files in version order,
// skipping versions already recorded in schema_version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	applied, err := s.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("reading schema_version: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	slices.Sort(files)

	for _, name := range files {
		version, err := parseMigrationVersion(path.Base(name))
		if err != nil {
			return err
		}
		if slices.Contains(applied, version) {
			continue
		}
		if err := s.applyMigration(name, version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(name string, version int) error {
	content, err := migrationsFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	return tx.Commit()
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// timeLayout keeps created_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const ingestionColumns = `id, created_at, file_name, file_size, extractor, provider, status,
	structuring_status, structuring_reason, experiences_found, projects_found,
	experiences_stored, projects_stored, experiences_duplicate, projects_duplicate,
	error, duration_ms`

// SaveIngestion inserts one pipeline run. Status defaults to completed.
func (s *Store) SaveIngestion(in Ingestion) error {
	status := in.Status
	if status == "" {
		status = StatusCompleted
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO ingestions (`+ingestionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.CreatedAt.UTC().Format(timeLayout), in.FileName, in.FileSize, in.Extractor, in.Provider, status,
		in.StructuringStatus, in.StructuringReason, in.ExperiencesFound, in.ProjectsFound,
		in.ExperiencesStored, in.ProjectsStored, in.ExperiencesDuplicate, in.ProjectsDuplicate,
		in.Error, in.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting ingestion %s: %w", in.ID, err)
	}
	return nil
}

// GetIngestion returns one run by id, or ErrNotFound.
func (s *Store) GetIngestion(id string) (Ingestion, error) {
	row := s.db.QueryRow(`SELECT `+ingestionColumns+` FROM ingestions WHERE id = ?`, id)
	in, err := scanIngestion(row)
	if err == sql.ErrNoRows {
		return Ingestion{}, ErrNotFound
	}
	if err != nil {
		return Ingestion{}, err
	}
	return in, nil
}

// ListIngestions returns runs newest first. A non-positive limit selects 50.
func (s *Store) ListIngestions(limit, offset int) ([]Ingestion, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`
		SELECT `+ingestionColumns+` FROM ingestions
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Ingestion{}
	for rows.Next() {
		in, err := scanIngestion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, in)
	}
	return results, rows.Err()
}

// CountIngestions returns the number of recorded runs per status.
func (s *Store) CountIngestions() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM ingestions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DeleteIngestionsBefore removes runs recorded before cutoff and returns how
// many were removed.
func (s *Store) DeleteIngestionsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM ingestions WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIngestion(sc scanner) (Ingestion, error) {
	var in Ingestion
	var createdAt string
	err := sc.Scan(&in.ID, &createdAt, &in.FileName, &in.FileSize, &in.Extractor, &in.Provider, &in.Status,
		&in.StructuringStatus, &in.StructuringReason, &in.ExperiencesFound, &in.ProjectsFound,
		&in.ExperiencesStored, &in.ProjectsStored, &in.ExperiencesDuplicate, &in.ProjectsDuplicate,
		&in.Error, &in.DurationMS)
	if err != nil {
		return Ingestion{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Ingestion{}, fmt.Errorf("parsing created_at: %w", err)
	}
	in.CreatedAt = t
	return in, nil
}
