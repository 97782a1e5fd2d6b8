// Package search does fuzzy matching over stored records.
package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/kalambet/vitae/internal/records"
)

// Hit is one matching record with its fingerprint and best key score.
type Hit[T records.Record] struct {
	ID     string `json:"id"`
	Score  int    `json:"score"`
	Record T      `json:"record"`
}

// field is one searchable string and the record it belongs to.
type field struct {
	record int
	text   string
}

type fields []field

func (f fields) String(i int) string { return f[i].text }
func (f fields) Len() int            { return len(f) }

// Experiences matches query against role, organization, location and each
// achievement.
func Experiences(query string, exps []records.Experience) []Hit[records.Experience] {
	var fs fields
	for i, e := range exps {
		fs = append(fs, field{i, e.Role}, field{i, e.Organization}, field{i, e.Location})
		for _, a := range e.Achievements {
			fs = append(fs, field{i, a})
		}
	}
	return collect(query, fs, exps, records.ExperienceFingerprint)
}

// Projects matches query against project name, role and each detail.
func Projects(query string, projs []records.Project) []Hit[records.Project] {
	var fs fields
	for i, p := range projs {
		fs = append(fs, field{i, p.ProjectName}, field{i, p.Role})
		for _, d := range p.Details {
			fs = append(fs, field{i, d})
		}
	}
	return collect(query, fs, projs, records.ProjectFingerprint)
}

// collect keeps the best score per record and orders hits by score, then by
// store order.
func collect[T records.Record](query string, fs fields, recs []T, id func(T) string) []Hit[T] {
	hits := []Hit[T]{}
	query = strings.TrimSpace(query)
	if query == "" || len(fs) == 0 {
		return hits
	}

	best := make(map[int]int)
	for _, m := range fuzzy.FindFrom(query, fs) {
		idx := fs[m.Index].record
		if s, ok := best[idx]; !ok || m.Score > s {
			best[idx] = m.Score
		}
	}

	order := make([]int, 0, len(best))
	for idx := range best {
		order = append(order, idx)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if best[a] != best[b] {
			return best[a] > best[b]
		}
		return a < b
	})

	for _, idx := range order {
		hits = append(hits, Hit[T]{ID: id(recs[idx]), Score: best[idx], Record: recs[idx]})
	}
	return hits
}
