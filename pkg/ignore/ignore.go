// Package ignore decides which local files are excluded from sync:
// glob patterns plus an explicit set of exact paths.
package ignore

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns are excluded by default: editor/OS temp files, the
// trash directory, and common dependency directories that might sit
// inside a linked workspace.
var DefaultPatterns = []string{
	"**/.trash/**",
	"**/.git/**",
	"**/node_modules/**",
	"**/*.tmp",
	"**/*.swp",
	"**/.DS_Store",
	"**/~$*",
}

// Filter holds the configured glob patterns and explicit paths, safe for
// concurrent use since ChangeSource and ReconciliationEngine both
// consult it.
type Filter struct {
	mu       sync.RWMutex
	patterns []string
	exact    map[string]struct{}
}

// New builds a Filter from patterns and exact paths. A nil/empty patterns
// slice is NOT replaced with DefaultPatterns -- callers that want the
// defaults pass them explicitly, so a persisted empty-patterns config is
// honored, not silently overridden.
func New(patterns []string, exactPaths []string) *Filter {
	f := &Filter{
		patterns: append([]string(nil), patterns...),
		exact:    make(map[string]struct{}, len(exactPaths)),
	}
	for _, p := range exactPaths {
		f.exact[normalize(p)] = struct{}{}
	}
	return f
}

// NewDefault builds a Filter seeded with DefaultPatterns and no explicit
// exclusions.
func NewDefault() *Filter {
	return New(DefaultPatterns, nil)
}

// ShouldIgnore is the disjunction of exact-path match and any glob match
// against path with its leading slash stripped.
func (f *Filter) ShouldIgnore(path string) bool {
	path = normalize(path)

	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, ok := f.exact[path]; ok {
		return true
	}
	for _, pattern := range f.patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// AddExactPath excludes one specific path, e.g. a file the user chose to
// unlink from sync without deleting it.
func (f *Filter) AddExactPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exact[normalize(path)] = struct{}{}
}

// RemoveExactPath re-includes a previously excluded exact path.
func (f *Filter) RemoveExactPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exact, normalize(path))
}

// Patterns returns a copy of the configured glob patterns, for
// persistence into the sync config.
func (f *Filter) Patterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.patterns...)
}

// ExactPaths returns the configured explicit exclusions, for persistence.
func (f *Filter) ExactPaths() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.exact))
	for p := range f.exact {
		out = append(out, p)
	}
	return out
}

func normalize(path string) string {
	return strings.TrimPrefix(path, "/")
}
