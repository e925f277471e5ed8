package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/memvault/internal/index"
)

func TestDeleteIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "del", index.CategoryPaper, "", "x.pdf", base)

	n, err := env.svc.Delete([]string{"del"}, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.svc.Delete([]string{"del"}, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = os.Stat(filepath.Join(env.root, owner.UserID, owner.AgentID, "paper", "del"))
	assert.NoError(t, err, "folder kept without removeFromStorage")
}

func TestDeleteRemovesFolder(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "rm", index.CategoryData, "", "x.csv", base)
	folder := filepath.Join(env.root, owner.UserID, owner.AgentID, "data", "rm")

	n, err := env.svc.Delete([]string{"rm"}, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(folder)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFolderAlreadyGone(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "ext", index.CategoryData, "", "x.csv", base)
	require.NoError(t, os.RemoveAll(filepath.Join(env.root, owner.UserID, owner.AgentID, "data", "ext")))

	n, err := env.svc.Delete([]string{"ext"}, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteForeignRecordUntouched(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "keep", index.CategoryData, "", "x.csv", base)
	bob := index.Owner{UserID: "bob", AgentID: owner.AgentID}

	n, err := env.svc.Delete([]string{"keep"}, bob, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = os.Stat(filepath.Join(env.root, owner.UserID, owner.AgentID, "data", "keep", "x.csv"))
	assert.NoError(t, err)
}

func TestDeleteLeavesLegacyAbsoluteFolder(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	outside := filepath.Join(env.dir, "writing_outputs", "job-1")
	require.NoError(t, os.MkdirAll(outside, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "final.pdf"), []byte("pdf"), 0644))

	require.NoError(t, env.store.Insert(&index.Record{
		RecordID:     "abs",
		Category:     index.CategoryWritingEvent,
		OriginalPath: outside,
		Owner:        owner,
		CreatedAt:    base,
	}))

	n, err := env.svc.Delete([]string{"abs"}, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(filepath.Join(outside, "final.pdf"))
	assert.NoError(t, err, "folders outside the owner tree are never removed")
}

func TestDeleteUnderDefaultRoot(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	defaultRoot := filepath.Join(env.dir, "default-root")
	env.svc.resolver.DefaultRoot = defaultRoot

	folder := filepath.Join(defaultRoot, owner.UserID, owner.AgentID, "paper", "fallback")
	require.NoError(t, os.MkdirAll(folder, 0755))
	require.NoError(t, env.store.Insert(&index.Record{
		RecordID:     "fallback",
		Category:     index.CategoryPaper,
		OriginalPath: "paper/fallback",
		Owner:        owner,
		CreatedAt:    base,
	}))

	n, err := env.svc.Delete([]string{"fallback"}, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(folder)
	assert.True(t, os.IsNotExist(err))
}
