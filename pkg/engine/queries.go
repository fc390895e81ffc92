package engine

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Playing reports whether name is currently in the Playing state. It is
// a synchronous query (spec.md §4.8): it reads the registry directly
// without going through the command queue, so it never blocks on the
// dispatcher worker.
func (e *Engine) Playing(name string) bool {
	s, ok := e.reg.Get(name)
	return ok && s.Playing()
}

// GetVolume returns a source's source_volume, or false if it doesn't
// exist.
func (e *Engine) GetVolume(name string) (float32, bool) {
	return e.reg.VolumeOf(name)
}

// ComputedGain returns a source's current computed_gain, or false if it
// doesn't exist.
func (e *Engine) ComputedGain(name string) (float32, bool) {
	return e.reg.ComputedGainOf(name)
}

// ListSources returns every currently registered source name.
func (e *Engine) ListSources() []string {
	return e.reg.List()
}

// Listener returns the listener's current (already-normalized) position,
// look-at and up vectors (SPEC_FULL §11's round-trip accessor).
func (e *Engine) Listener() (pos, look, up Vec3) {
	return e.reg.Listener()
}

// MasterVolume returns the current process-wide master gain.
func (e *Engine) MasterVolume() float32 {
	return e.reg.MasterGain()
}

// LastError reports the most recent worker-side failure recorded for
// name — voice exhaustion, a decode failure, a backend attach error —
// since facade commands themselves never fail synchronously (SPEC_FULL
// §11's per-source last-error snapshot). Cleared once the source next
// starts cleanly.
func (e *Engine) LastError(name string) (string, bool) {
	return e.disp.LastError(name)
}

// FindSources ranks registered source names against query using fuzzy
// string matching (SPEC_FULL §9.5), the same
// github.com/lithammer/fuzzysearch/fuzzy the teacher's internal/search
// package uses for song lookup, applied here to sourcenames instead.
// Purely additive: it never mutates engine state and takes only the
// registry's read path (ListSources), so it composes with any other
// query without touching the command queue.
func (e *Engine) FindSources(query string) []string {
	if query == "" {
		return nil
	}
	names := e.reg.List()
	type scored struct {
		name  string
		score int
	}
	q := strings.ToLower(query)
	var matches []scored
	for _, n := range names {
		lower := strings.ToLower(n)
		rank := fuzzy.RankMatch(q, lower)
		if rank < 0 {
			continue
		}
		// Similarity in [0,1]: 1 for an exact match, lower the more
		// characters the name carries beyond the query.
		if 1-float64(rank)/float64(len(lower)) < e.cfg.Search.FuzzyThreshold {
			continue
		}
		matches = append(matches, scored{n, rank})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].name < matches[j].name
	})
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
