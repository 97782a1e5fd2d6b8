// Package uploads stores raw uploaded files without processing them.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned when a file name is empty after sanitizing.
var ErrInvalidName = errors.New("invalid file name")

// Sink persists one uploaded file and returns the name it was stored under.
type Sink interface {
	Backend() string
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// SanitizeName strips any directory part from name and replaces spaces with
// underscores.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "/" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return name, nil
}

// Local writes uploads into a directory, replacing any file of the same name.
type Local struct {
	dir string
}

// NewLocal returns a Local sink rooted at dir. The directory is created on
// the first Save.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Backend() string { return "local" }

// Dir returns the upload directory.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	filename, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, ".upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", filename, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("setting mode on %s: %w", filename, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(l.dir, filename)); err != nil {
		return "", fmt.Errorf("storing %s: %w", filename, err)
	}
	return filename, nil
}
