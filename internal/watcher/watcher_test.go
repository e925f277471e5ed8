package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/storage"
)

var owner = index.Owner{UserID: "alice", AgentID: "physics_agent"}

func newFixture(t *testing.T) (*index.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := index.NewStore(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, filepath.Join(dir, "storage")
}

func seedRecord(t *testing.T, store *index.Store, root, id string, category index.Category) string {
	t.Helper()
	folder := filepath.Join(root, owner.UserID, owner.AgentID, string(category), id)
	require.NoError(t, os.MkdirAll(folder, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "f.txt"), []byte("x"), 0644))
	require.NoError(t, store.Insert(&index.Record{
		RecordID:     id,
		Category:     category,
		OriginalPath: string(category) + "/" + id,
		FileName:     "f.txt",
		Owner:        owner,
		CreatedAt:    time.Now(),
	}))
	return folder
}

func testConfig() WatcherConfig {
	cfg := DefaultWatcherConfig()
	cfg.DebounceWindow = 20 * time.Millisecond
	return cfg
}

func TestWatcherDetectsRemovedRecordFolder(t *testing.T) {
	store, root := newFixture(t)
	folder := seedRecord(t, store, root, "r1", index.CategoryPaper)
	seedRecord(t, store, root, "r2", index.CategoryPaper)

	w, err := New(testConfig(), root, store)
	require.NoError(t, err)

	var mu sync.Mutex
	var notified []string
	w.OnOrphan(func(o Orphan) {
		mu.Lock()
		notified = append(notified, o.RecordID)
		mu.Unlock()
	})

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop() })

	require.NoError(t, os.RemoveAll(folder))

	require.Eventually(t, func() bool {
		return len(w.Orphans(owner)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	orphans := w.Orphans(owner)
	assert.Equal(t, "r1", orphans[0].RecordID)
	assert.Equal(t, folder, orphans[0].FolderPath)

	mu.Lock()
	assert.Equal(t, []string{"r1"}, notified)
	mu.Unlock()

	require.NoError(t, os.MkdirAll(folder, 0755))
	require.Eventually(t, func() bool {
		return len(w.Orphans(owner)) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherCategoryRemovalScansOwner(t *testing.T) {
	store, root := newFixture(t)
	seedRecord(t, store, root, "d1", index.CategoryData)
	seedRecord(t, store, root, "d2", index.CategoryData)
	seedRecord(t, store, root, "p1", index.CategoryPaper)

	w, err := New(testConfig(), root, store)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop() })

	require.NoError(t, os.RemoveAll(filepath.Join(root, owner.UserID, owner.AgentID, "data")))

	require.Eventually(t, func() bool {
		return len(w.Orphans(owner)) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestScanOwnerWithoutEvents(t *testing.T) {
	store, root := newFixture(t)
	folder := seedRecord(t, store, root, "s1", index.CategoryImage)
	seedRecord(t, store, root, "s2", index.CategoryImage)
	require.NoError(t, store.Insert(&index.Record{
		RecordID:     "legacy",
		Category:     index.CategoryWritingEvent,
		OriginalPath: "/nowhere/at/all",
		Owner:        owner,
		CreatedAt:    time.Now(),
	}))
	require.NoError(t, os.RemoveAll(folder))

	w, err := New(testConfig(), root, store)
	require.NoError(t, err)
	defer w.Stop()

	orphans := w.ScanOwner(owner)
	require.Len(t, orphans, 1)
	assert.Equal(t, "s1", orphans[0].RecordID)

	_, err = store.DeleteMany([]string{"s1"}, owner)
	require.NoError(t, err)
	assert.Empty(t, w.Orphans(owner), "deleted records drop out")
}

func TestScanOwnerAcceptsDefaultRoot(t *testing.T) {
	store, root := newFixture(t)
	defaultRoot := filepath.Join(filepath.Dir(root), "default")
	seedRecord(t, store, defaultRoot, "moved", index.CategoryData)
	seedRecord(t, store, root, "local", index.CategoryData)

	w, err := New(testConfig(), root, store)
	require.NoError(t, err)
	defer w.Stop()

	orphans := w.ScanOwner(owner)
	require.Len(t, orphans, 1, "without the resolver only the storage root counts")
	assert.Equal(t, "moved", orphans[0].RecordID)

	w.SetResolver(storage.NewResolver(defaultRoot))
	assert.Empty(t, w.ScanOwner(owner))
	assert.Empty(t, w.Orphans(owner))
}

func TestLevel(t *testing.T) {
	w := &Watcher{root: filepath.Clean("/data/storage")}

	lvl, parts, ok := w.level("/data/storage/alice/agent/paper/r1")
	assert.True(t, ok)
	assert.Equal(t, levelRecord, lvl)
	assert.Equal(t, []string{"alice", "agent", "paper", "r1"}, parts)

	lvl, _, ok = w.level("/data/storage")
	assert.True(t, ok)
	assert.Equal(t, levelRoot, lvl)

	_, _, ok = w.level("/data/other")
	assert.False(t, ok)
}

func TestShouldIgnore(t *testing.T) {
	w := &Watcher{config: DefaultWatcherConfig()}

	assert.True(t, w.shouldIgnore("/s/alice/a/data/r1/.hidden"))
	assert.True(t, w.shouldIgnore("/s/downloads/.report.pdf.123.part"))
	assert.True(t, w.shouldIgnore("/s/alice/a/data/r1/x.tmp"))
	assert.False(t, w.shouldIgnore("/s/alice/a/data/r1"))
}

func TestDebouncerCoalesces(t *testing.T) {
	flushed := make(chan []FileEvent, 1)
	d := NewDebouncer(20*time.Millisecond, 100, func(events []FileEvent) { flushed <- events })

	now := time.Now()
	d.Add(FileEvent{Path: "/a", Type: EventDelete, Timestamp: now})
	d.Add(FileEvent{Path: "/a", Type: EventModify, Timestamp: now.Add(time.Millisecond)})
	d.Add(FileEvent{Path: "/b", Type: EventCreate, Timestamp: now.Add(2 * time.Millisecond)})

	select {
	case events := <-flushed:
		require.Len(t, events, 2)
		assert.Equal(t, "/a", events[0].Path)
		assert.Equal(t, EventDelete, events[0].Type)
		assert.Equal(t, "/b", events[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}

	d.Stop()
	d.Add(FileEvent{Path: "/c"})
	assert.Zero(t, d.Pending())
}
