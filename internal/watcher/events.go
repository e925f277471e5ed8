package watcher

import (
	"time"

	"github.com/alucardeht/memvault/internal/index"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

type FileEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}

func (e FileEvent) removal() bool {
	return e.Type == EventDelete || e.Type == EventRename
}

// Orphan is an indexed record whose storage folder disappeared from disk.
type Orphan struct {
	RecordID   string         `json:"record_id"`
	Category   index.Category `json:"category"`
	Owner      index.Owner    `json:"owner"`
	FolderPath string         `json:"folder_path"`
	DetectedAt time.Time      `json:"detected_at"`
}

// treeLevel is how deep a path sits below the storage root:
// 1 user, 2 agent, 3 category, 4 record folder.
type treeLevel int

const (
	levelRoot treeLevel = iota
	levelUser
	levelAgent
	levelCategory
	levelRecord
)
