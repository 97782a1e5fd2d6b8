// Package structure turns resume text into experience and project records
// using a language model constrained by a fixed JSON schema.
package structure

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/vitae/internal/records"
)

const defaultTimeout = 120 * time.Second

// Structuring outcome reported alongside the content.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ErrRefused is returned by providers when the model declines to answer.
var ErrRefused = errors.New("model refused the request")

// Request is one structuring call: the system prompt, the resume text and
// the schema the answer must follow.
type Request struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// Provider sends a Request to one model backend and returns the raw text of
// its answer.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Result is the outcome of Structure. Content is always usable: on any
// failure it is the empty structure and Status is StatusDegraded.
type Result struct {
	Content records.Structured `json:"content"`
	Status  string             `json:"status"`
	Reason  string             `json:"reason,omitempty"`
}

// Degraded reports whether the provider output was discarded.
func (r Result) Degraded() bool {
	return r.Status == StatusDegraded
}

// Structurer wraps a Provider with the resume prompt, schema validation and
// a per-call timeout.
type Structurer struct {
	provider Provider
	timeout  time.Duration
}

// New creates a Structurer. A non-positive timeout selects the default of
// two minutes.
func New(p Provider, timeout time.Duration) *Structurer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Structurer{provider: p, timeout: timeout}
}

// Provider returns the name of the backing provider.
func (s *Structurer) Provider() string {
	return s.provider.Name()
}

// Structure asks the model for the experience and project groups in text.
// It never returns an error: provider failures, refusals, malformed JSON and
// contract violations all degrade to the empty structure with a reason.
func (s *Structurer) Structure(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return degraded("empty input")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.provider.Complete(ctx, Request{
		System:     SystemPrompt,
		User:       text,
		SchemaName: SchemaName,
		Schema:     SchemaMap(),
	})
	if err != nil {
		slog.Warn("structuring call failed", "provider", s.provider.Name(), "error", err)
		return degraded(err.Error())
	}

	content, err := Decode(raw)
	if err != nil {
		slog.Warn("discarding structuring response", "provider", s.provider.Name(), "error", err, "response", truncate(raw, 512))
		return degraded(err.Error())
	}

	slog.Debug("structured resume", "provider", s.provider.Name(),
		"experiences", len(content.Experience), "projects", len(content.Projects))
	return Result{Content: content.Normalize(), Status: StatusOK}
}

func degraded(reason string) Result {
	return Result{
		Content: records.Empty(),
		Status:  StatusDegraded,
		Reason:  reason,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
