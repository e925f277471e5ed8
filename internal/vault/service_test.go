package vault

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alucardeht/memvault/internal/config"
	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/memu"
	"github.com/alucardeht/memvault/internal/storage"
)

var owner = index.Owner{UserID: "alice", AgentID: "physics_agent"}

type fakeGateway struct {
	mu sync.Mutex

	enabled     bool
	retrieveRaw string
	retrieveErr string
	memorizeRes memu.MemorizeResult

	queries     []string
	overrides   []map[string]interface{}
	memorized   [][]memu.Message
	memorizeOvr []map[string]interface{}
}

func (g *fakeGateway) Enabled() bool { return g.enabled }

func (g *fakeGateway) Memorize(conv []memu.Message, userID, agentID string, override map[string]interface{}, wait bool, poll, timeout time.Duration) *memu.MemorizeResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memorized = append(g.memorized, conv)
	g.memorizeOvr = append(g.memorizeOvr, override)
	res := g.memorizeRes
	return &res
}

func (g *fakeGateway) Retrieve(ctx context.Context, query, userID, agentID string, override map[string]interface{}) *memu.RetrieveResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, query)
	g.overrides = append(g.overrides, override)
	if g.retrieveErr != "" {
		return &memu.RetrieveResult{Error: g.retrieveErr}
	}
	return &memu.RetrieveResult{Raw: []byte(g.retrieveRaw)}
}

type testEnv struct {
	svc     *Service
	store   *index.Store
	gateway *fakeGateway
	root    string
	dir     string
}

func newTestEnv(t *testing.T, gw *fakeGateway, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := index.NewStore(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if gw == nil {
		gw = &fakeGateway{}
	}
	if opts.StorageRoot == "" {
		opts.StorageRoot = filepath.Join(dir, "storage")
	}
	// tests of the no-wait path clear env.svc.wait
	opts.WaitOnMemorize = true

	return &testEnv{
		svc:     NewService(store, gw, opts),
		store:   store,
		gateway: gw,
		root:    opts.StorageRoot,
		dir:     dir,
	}
}

// seed writes a record folder with one file, then inserts the row.
func (e *testEnv) seed(t *testing.T, id string, category index.Category, description, fileName string, createdAt time.Time) *index.Record {
	t.Helper()

	folder := storage.BuildPath(e.root, owner.UserID, owner.AgentID, category, id)
	require.NoError(t, os.MkdirAll(folder, 0755))
	if fileName != "" {
		require.NoError(t, os.WriteFile(filepath.Join(folder, fileName), []byte("content of "+id), 0644))
	}

	rec := &index.Record{
		RecordID:     id,
		Category:     category,
		OriginalPath: storage.RelativePath(category, id),
		FileName:     fileName,
		Description:  description,
		Owner:        owner,
		CreatedAt:    createdAt,
	}
	require.NoError(t, e.store.Insert(rec))
	return rec
}

func (e *testEnv) writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, "src", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func scenarios(t *testing.T, doc string) *config.Scenarios {
	t.Helper()
	s, err := config.ParseScenarios([]byte(doc))
	require.NoError(t, err)
	return s
}
