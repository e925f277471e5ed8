// Package records exposes the vault operations as daemon tools.
package records

import (
	"bytes"
	"encoding/json"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/tools"
	"github.com/alucardeht/memvault/internal/vault"
	"github.com/alucardeht/memvault/internal/watcher"
)

const defaultListLimit = 50

// OrphanSource is implemented by *watcher.Watcher.
type OrphanSource interface {
	Orphans(owner index.Owner) []watcher.Orphan
	ScanOwner(owner index.Owner) []watcher.Orphan
}

// Defaults fill in the owner and download directory when a call omits them.
type Defaults struct {
	UserID       string
	AgentID      string
	DownloadsDir string
}

type base struct {
	svc      *vault.Service
	defaults Defaults
}

type ownerInput struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
}

func (b base) owner(in ownerInput) index.Owner {
	owner := index.Owner{UserID: in.UserID, AgentID: in.AgentID}
	if owner.UserID == "" {
		owner.UserID = b.defaults.UserID
	}
	if owner.AgentID == "" {
		owner.AgentID = b.defaults.AgentID
	}
	return owner
}

func GetTools(svc *vault.Service, orphans OrphanSource, defaults Defaults) []tools.Tool {
	b := base{svc: svc, defaults: defaults}

	list := []tools.Tool{
		&ListTool{b},
		&GetTool{b},
		&MatchTool{b},
		&SearchTool{b},
		&DownloadInfoTool{b},
		&DownloadTool{b},
		&DeleteTool{b},
		&UploadTool{b},
		&WritingEventTool{b},
		&SaveArtifactTool{b},
		&MemoryContextTool{b},
	}
	if orphans != nil {
		list = append(list, &OrphansTool{base: b, orphans: orphans})
	}
	return list
}

func decode(input json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return tools.NewInvalidParamsError("invalid arguments: %v", err)
	}
	return nil
}

func parseCategory(raw string) (*index.Category, error) {
	if raw == "" {
		return nil, nil
	}
	c, ok := index.ParseCategory(raw)
	if !ok {
		return nil, tools.NewInvalidParamsError("unknown category %q", raw)
	}
	return &c, nil
}
