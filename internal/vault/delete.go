package vault

import (
	"fmt"
	"os"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/storage"
)

// Delete removes owner-scoped rows and, with removeFromStorage, their
// folders. Folders are found with the same resolution used for downloads and
// removed only when they sit inside the owner's tree of a known storage root;
// legacy absolute paths elsewhere are left on disk.
func (s *Service) Delete(recordIDs []string, owner index.Owner, removeFromStorage bool) (int, error) {
	var folders []string
	if removeFromStorage {
		for _, id := range recordIDs {
			rec, err := s.index.Get(id, owner)
			if err != nil {
				return 0, fmt.Errorf("get record %s: %w", id, err)
			}
			if rec == nil {
				continue
			}
			if folder, ok := s.resolve(rec); ok {
				folders = append(folders, folder)
			}
		}
	}

	deleted, err := s.index.DeleteMany(recordIDs, owner)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}

	for _, folder := range folders {
		if !s.insideOwnerTree(folder, owner) {
			log.Warn("refusing to remove folder outside owner tree", "user_id", owner.UserID, "path", folder)
			continue
		}
		if err := os.RemoveAll(folder); err != nil {
			log.Error("failed to remove record folder", "path", folder, "error", err)
		}
	}

	log.Info("records deleted", "user_id", owner.UserID, "agent_id", owner.AgentID, "requested", len(recordIDs), "deleted", deleted)
	return deleted, nil
}

func (s *Service) insideOwnerTree(folder string, owner index.Owner) bool {
	for _, root := range s.resolver.Roots(s.root) {
		if storage.Contains(storage.OwnerRoot(root, owner), folder) {
			return true
		}
	}
	return false
}
