package storage

import (
	"path/filepath"
	"strings"

	"github.com/alucardeht/memvault/internal/index"
)

// Resolver turns a record's stored path into an existing folder. DefaultRoot
// is the process-wide storage root consulted when an alternate root misses.
type Resolver struct {
	DefaultRoot string
}

func NewResolver(defaultRoot string) *Resolver {
	return &Resolver{DefaultRoot: defaultRoot}
}

// Resolve never creates directories. It returns false when nothing exists on disk.
func (r *Resolver) Resolve(rec *index.Record, storageRoot, userID, agentID string) (string, bool) {
	if rec == nil {
		return "", false
	}

	raw := strings.TrimSpace(rec.OriginalPath)
	if raw == "" {
		return "", false
	}

	if IsAbsolute(raw) {
		if exists(raw) {
			return raw, true
		}
		return "", false
	}

	full := filepath.Join(storageRoot, userID, agentID, raw)
	if exists(full) {
		return full, true
	}

	if r.DefaultRoot != "" && filepath.Clean(storageRoot) != filepath.Clean(r.DefaultRoot) {
		fallback := filepath.Join(r.DefaultRoot, userID, agentID, raw)
		if exists(fallback) {
			return fallback, true
		}
	}

	return "", false
}

// Roots lists the storage roots a record of storageRoot may resolve under.
func (r *Resolver) Roots(storageRoot string) []string {
	roots := []string{storageRoot}
	if r.DefaultRoot != "" && filepath.Clean(storageRoot) != filepath.Clean(r.DefaultRoot) {
		roots = append(roots, r.DefaultRoot)
	}
	return roots
}
