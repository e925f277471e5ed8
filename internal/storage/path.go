// Package storage maps records onto the on-disk tree
// <root>/<user_id>/<agent_id>/<category>/<record_id>/.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/alucardeht/memvault/internal/index"
)

// BuildPath is a pure join; it performs no I/O and no validation.
func BuildPath(root, userID, agentID string, category index.Category, recordID string) string {
	return filepath.Join(root, userID, agentID, string(category), recordID)
}

// RelativePath is the owner-relative form stored in Record.OriginalPath.
func RelativePath(category index.Category, recordID string) string {
	return string(category) + "/" + recordID
}

// OwnerRoot is the directory holding every category folder of one owner.
func OwnerRoot(root string, owner index.Owner) string {
	return filepath.Join(root, owner.UserID, owner.AgentID)
}

func IsAbsolute(raw string) bool {
	if filepath.IsAbs(raw) || strings.HasPrefix(raw, "/") {
		return true
	}
	// drive-letter paths written on Windows hosts
	return len(raw) > 1 && raw[1] == ':'
}

// Contains reports whether path lies strictly inside root, lexically.
func Contains(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
