// Package moderation classifies outgoing text against a hot-swappable blocklist.
package moderation

import (
	"strings"
	"sync/atomic"
)

// Decision is the outcome of Evaluate
type Decision string

const (
	Allowed Decision = "allowed"
	Blocked Decision = "blocked"
)

// Verdict carries the decision and, when blocked, the first matching entry.
type Verdict struct {
	Decision Decision
	Match    string
}

// Blocked reports whether the text must not be persisted
func (v Verdict) Blocked() bool { return v.Decision == Blocked }

// Gate evaluates text against the current blocklist. Safe for concurrent use;
// Evaluate never blocks on Swap.
type Gate struct {
	words atomic.Pointer[[]string]
}

// NewGate creates a gate with the given blocklist
func NewGate(words []string) *Gate {
	g := &Gate{}
	g.Swap(words)
	return g
}

// Swap replaces the blocklist. Entries are lower-cased and de-duplicated.
func (g *Gate) Swap(words []string) {
	normalized := Normalize(words)
	g.words.Store(&normalized)
}

// Words returns a copy of the active blocklist
func (g *Gate) Words() []string {
	current := *g.words.Load()
	out := make([]string, len(current))
	copy(out, current)
	return out
}

// Evaluate blocks text whose lower-cased form contains any blocklist entry.
func (g *Gate) Evaluate(text string) Verdict {
	lowered := strings.ToLower(text)
	for _, w := range *g.words.Load() {
		if strings.Contains(lowered, w) {
			return Verdict{Decision: Blocked, Match: w}
		}
	}
	return Verdict{Decision: Allowed}
}

// Normalize lower-cases entries, dropping duplicates and entries that are
// empty or whitespace only. Surrounding spaces are kept and take part in
// the substring match.
func Normalize(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w) == "" {
			continue
		}
		w = strings.ToLower(w)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
