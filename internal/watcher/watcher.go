// Package watcher watches the storage tree and reports records whose folders
// were removed behind the index's back.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/logger"
	"github.com/alucardeht/memvault/internal/storage"
)

var log = logger.ForComponent("watcher")

// rows checked when a whole owner or category directory disappears
const scanLimit = 10000

// RecordLookup is the read side of the record index.
type RecordLookup interface {
	Get(recordID string, owner index.Owner) (*index.Record, error)
	List(owner index.Owner, category *index.Category, limit int) ([]*index.Record, error)
}

type Watcher struct {
	config      WatcherConfig
	fsWatcher   *fsnotify.Watcher
	fsWatcherMu sync.Mutex
	debouncer   *Debouncer
	records     RecordLookup
	root        string
	resolver    *storage.Resolver
	orphans     map[string]Orphan
	orphansMu   sync.RWMutex
	onOrphan    func(Orphan)
	mu          sync.RWMutex
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(config WatcherConfig, root string, records RecordLookup) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if config.DebounceWindow <= 0 {
		config.DebounceWindow = 300 * time.Millisecond
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 100
	}

	w := &Watcher{
		config:    config,
		fsWatcher: fsWatcher,
		records:   records,
		root:      filepath.Clean(root),
		resolver:  storage.NewResolver(root),
		orphans:   make(map[string]Orphan),
	}

	w.debouncer = NewDebouncer(config.DebounceWindow, config.MaxBatchSize, w.onFlush)

	return w, nil
}

// SetResolver makes the watcher accept folders under every root r resolves
// to, so records kept under a separate default root are not orphans.
func (w *Watcher) SetResolver(r *storage.Resolver) {
	w.mu.Lock()
	w.resolver = r
	w.mu.Unlock()
}

// OnOrphan registers a callback invoked for every newly detected orphan.
func (w *Watcher) OnOrphan(fn func(Orphan)) {
	w.mu.Lock()
	w.onOrphan = fn
	w.mu.Unlock()
}

func (w *Watcher) addToWatcher(path string) error {
	w.fsWatcherMu.Lock()
	defer w.fsWatcherMu.Unlock()
	return w.fsWatcher.Add(path)
}

func (w *Watcher) level(path string) (treeLevel, []string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return 0, nil, false
	}
	if rel == "." {
		return levelRoot, nil, true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return treeLevel(len(parts)), parts, true
}

// walkAndAdd watches directories down to the category level; record
// folders are observed through their parent.
func (w *Watcher) walkAndAdd(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		log.Debug("failed to read directory", "path", path, "error", err)
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fullPath := filepath.Join(path, entry.Name())
		if w.shouldIgnore(fullPath) {
			continue
		}
		if lvl, _, ok := w.level(fullPath); !ok || lvl > levelCategory {
			continue
		}

		if err := w.addToWatcher(fullPath); err != nil {
			log.Debug("failed to watch directory", "path", fullPath, "error", err)
			continue
		}
		log.Debug("watching directory", "path", fullPath)
		w.walkAndAdd(fullPath)
	}

	return nil
}

func (w *Watcher) Start(ctx context.Context) error {
	log.Info("starting storage watcher", "root", w.root)

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(w.root, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.addToWatcher(w.root); err != nil {
		w.mu.Unlock()
		return err
	}

	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.walkAndAdd(w.root)

	go w.handleEvents()

	return nil
}

func (w *Watcher) handleEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			log.Debug("storage event", "path", event.Name, "op", event.Op.String())

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.shouldIgnore(event.Name) {
					if lvl, _, ok := w.level(event.Name); ok && lvl <= levelCategory {
						if err := w.addToWatcher(event.Name); err == nil {
							w.walkAndAdd(event.Name)
						}
					}
				}
			}

			fileEvent := w.convertEvent(event)
			if fileEvent != nil {
				w.debouncer.Add(*fileEvent)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn("storage watcher error", "error", err)
		}
	}
}

func (w *Watcher) convertEvent(event fsnotify.Event) *FileEvent {
	if w.shouldIgnore(event.Name) {
		return nil
	}

	var eventType EventType

	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventModify
	case event.Has(fsnotify.Remove):
		eventType = EventDelete
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	default:
		return nil
	}

	return &FileEvent{
		Path:      event.Name,
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (w *Watcher) onFlush(events []FileEvent) {
	log.Debug("flushing storage events", "count", len(events))

	for _, event := range events {
		lvl, parts, ok := w.level(event.Path)
		if !ok || lvl == levelRoot {
			continue
		}

		if event.Type == EventCreate {
			if lvl == levelRecord {
				w.clearOrphan(parts[3])
			}
			continue
		}
		if !event.removal() {
			continue
		}

		switch {
		case lvl == levelRecord:
			w.checkRecord(index.Owner{UserID: parts[0], AgentID: parts[1]}, parts[3])
		case lvl == levelCategory || lvl == levelAgent:
			var category *index.Category
			if lvl == levelCategory {
				c := index.Category(parts[2])
				category = &c
			}
			w.checkOwner(index.Owner{UserID: parts[0], AgentID: parts[1]}, category)
		case lvl == levelUser:
			log.Warn("user storage directory removed", "user_id", parts[0], "path", event.Path)
		}
	}
}

func (w *Watcher) checkRecord(owner index.Owner, recordID string) {
	rec, err := w.records.Get(recordID, owner)
	if err != nil {
		log.Error("orphan check failed", "record_id", recordID, "error", err)
		return
	}
	if rec != nil {
		w.checkFolder(rec)
	}
}

func (w *Watcher) checkOwner(owner index.Owner, category *index.Category) {
	recs, err := w.records.List(owner, category, scanLimit)
	if err != nil {
		log.Error("orphan scan failed", "user_id", owner.UserID, "agent_id", owner.AgentID, "error", err)
		return
	}
	for _, rec := range recs {
		w.checkFolder(rec)
	}
}

// checkFolder only judges owner-relative paths; legacy absolute paths live
// outside the watched tree.
func (w *Watcher) checkFolder(rec *index.Record) {
	if rec.OriginalPath == "" || storage.IsAbsolute(rec.OriginalPath) {
		return
	}

	w.mu.RLock()
	roots := w.resolver.Roots(w.root)
	w.mu.RUnlock()

	rel := filepath.FromSlash(rec.OriginalPath)
	for _, root := range roots {
		if _, err := os.Stat(filepath.Join(storage.OwnerRoot(root, rec.Owner), rel)); err == nil {
			w.clearOrphan(rec.RecordID)
			return
		}
	}
	folder := filepath.Join(storage.OwnerRoot(w.root, rec.Owner), rel)

	orphan := Orphan{
		RecordID:   rec.RecordID,
		Category:   rec.Category,
		Owner:      rec.Owner,
		FolderPath: folder,
		DetectedAt: time.Now(),
	}

	w.orphansMu.Lock()
	_, known := w.orphans[rec.RecordID]
	w.orphans[rec.RecordID] = orphan
	w.orphansMu.Unlock()

	if known {
		return
	}

	log.Warn("record folder removed externally", "record_id", rec.RecordID, "user_id", rec.Owner.UserID, "agent_id", rec.Owner.AgentID, "path", folder)

	w.mu.RLock()
	cb := w.onOrphan
	w.mu.RUnlock()
	if cb != nil {
		cb(orphan)
	}
}

func (w *Watcher) clearOrphan(recordID string) {
	w.orphansMu.Lock()
	delete(w.orphans, recordID)
	w.orphansMu.Unlock()
}

// Orphans lists detected orphans for owner, oldest first. A record deleted
// from the index since detection is dropped from the list.
func (w *Watcher) Orphans(owner index.Owner) []Orphan {
	w.orphansMu.RLock()
	candidates := make([]Orphan, 0, len(w.orphans))
	for _, o := range w.orphans {
		if o.Owner == owner {
			candidates = append(candidates, o)
		}
	}
	w.orphansMu.RUnlock()

	out := make([]Orphan, 0, len(candidates))
	for _, o := range candidates {
		rec, err := w.records.Get(o.RecordID, owner)
		if err == nil && rec == nil {
			w.clearOrphan(o.RecordID)
			continue
		}
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

// ScanOwner checks every record of owner against the disk immediately.
func (w *Watcher) ScanOwner(owner index.Owner) []Orphan {
	w.checkOwner(owner, nil)
	return w.Orphans(owner)
}

func (w *Watcher) shouldIgnore(path string) bool {
	basename := filepath.Base(path)

	if !w.config.WatchHidden && strings.HasPrefix(basename, ".") {
		return true
	}

	for _, pattern := range w.config.IgnorePatterns {
		if match, _ := doublestar.Match(pattern, filepath.ToSlash(path)); match {
			return true
		}
	}

	return false
}

func (w *Watcher) Stop() error {
	log.Info("stopping storage watcher")

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fsWatcher.Close()
	}

	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.debouncer.Stop()

	w.fsWatcherMu.Lock()
	defer w.fsWatcherMu.Unlock()
	return w.fsWatcher.Close()
}
