package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/memu"
)

// folderCheckingIndex fails the test if a row is inserted before its folder
// holds the record's file.
type folderCheckingIndex struct {
	Index
	t    *testing.T
	root string
}

func (c *folderCheckingIndex) Insert(rec *index.Record) error {
	folder := filepath.Join(c.root, rec.Owner.UserID, rec.Owner.AgentID, rec.OriginalPath)
	st, err := os.Stat(folder)
	if assert.NoError(c.t, err, "folder must exist before insert") {
		assert.True(c.t, st.IsDir())
	}
	if rec.FileName != "" {
		_, err := os.Stat(filepath.Join(folder, rec.FileName))
		assert.NoError(c.t, err, "file must be written before insert")
	}
	return c.Index.Insert(rec)
}

func TestUploadRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	payload := []byte("%PDF-1.7\x00\x01binary body")
	src := env.writeSource(t, "paper.pdf", payload)

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{src}, Owner: owner, UserInput: "  read later "})
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	require.Empty(t, item.Error)
	assert.True(t, res.GatewayDisabled)
	assert.Equal(t, []string{item.RecordID}, res.RecordIDs)
	assert.Len(t, item.RecordID, 36)

	rec, err := env.svc.GetRecord(item.RecordID, owner)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, index.CategoryPaper, rec.Category)
	assert.Equal(t, "paper/"+item.RecordID, rec.OriginalPath)
	assert.Equal(t, "read later", rec.UserInput)
	assert.Equal(t, index.MemorizeNone, rec.MemorizeStatus)
	assert.True(t, strings.HasPrefix(rec.Description, "[MEMU_REF record_id="+item.RecordID+" category=paper file=paper.pdf]"))
	assert.Contains(t, rec.Description, "[Binary/structured file: paper.pdf, type=.pdf]")
	assert.Contains(t, rec.Description, "User note: read later")

	folder, ok := env.svc.resolve(rec)
	require.True(t, ok)
	stored, err := os.ReadFile(filepath.Join(folder, "paper.pdf"))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
}

func TestUploadInsertsAfterFolder(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.svc.index = &folderCheckingIndex{Index: env.store, t: t, root: env.root}

	a := env.writeSource(t, "a.csv", []byte("x,y\n1,2\n"))
	b := env.writeSource(t, "b.md", []byte("# notes"))

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{a, b}, Owner: owner})
	require.Len(t, res.RecordIDs, 2)

	_, err := env.svc.RegisterWritingEvent(WritingEventRequest{
		JobID:           "job",
		OutputDirectory: writingJobDir(t, env),
		Owner:           owner,
	})
	require.NoError(t, err)

	_, err = env.svc.SaveArtifact(ArtifactRequest{
		Category: index.CategoryParameterRecommendation,
		Files:    map[string][]byte{"summary.md": []byte("s")},
		Owner:    owner,
	})
	require.NoError(t, err)
}

func TestUploadReportsPerFileOutcome(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	good := env.writeSource(t, "ok.json", []byte(`{"a":1}`))

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{filepath.Join(env.dir, "missing.csv"), good}, Owner: owner})
	require.Len(t, res.Items, 2)
	assert.Contains(t, res.Items[0].Error, ErrSourceNotFound.Error())
	assert.Empty(t, res.Items[0].RecordID)
	assert.Empty(t, res.Items[1].Error)
	assert.Equal(t, index.CategoryData, res.Items[1].Record.Category)
	assert.Len(t, res.RecordIDs, 1)
}

func TestUploadCategoryOverride(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	src := env.writeSource(t, "notes.txt", []byte("hello"))
	cat := index.CategoryProposal

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{src}, Category: &cat, Owner: owner})
	require.Empty(t, res.Items[0].Error)
	assert.Equal(t, index.CategoryProposal, res.Items[0].Record.Category)
	assert.Contains(t, res.Items[0].Record.Description, "Content or summary:\nhello")
}

func TestUploadMemorizeOutcomeAttached(t *testing.T) {
	gw := &fakeGateway{enabled: true, memorizeRes: memu.MemorizeResult{TaskID: "task-9", Status: memu.StatusSuccess}}
	env := newTestEnv(t, gw, Options{Scenarios: scenarios(t, `{"physics_agent":{"memory_types":["knowledge","event"]}}`)})
	src := env.writeSource(t, "data.csv", []byte("a,b\n"))

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{src}, Owner: owner})
	item := res.Items[0]
	require.Empty(t, item.Error)
	assert.Equal(t, "task-9", item.TaskID)
	assert.Equal(t, index.MemorizeSuccess, item.MemorizeStatus)
	assert.Equal(t, []string{"task-9"}, res.TaskIDs)

	rec, err := env.store.Get(item.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, index.MemorizeSuccess, rec.MemorizeStatus)
	assert.Equal(t, "task-9", rec.TaskID)

	require.Len(t, gw.memorized, 1)
	assert.Equal(t, rec.Description, gw.memorized[0][0].Content)
	assert.Equal(t, uploadAckMessage, gw.memorized[0][1].Content)
	assert.Equal(t, []string{"knowledge", "event"}, gw.memorizeOvr[0]["memory_types"])
}

func TestUploadMemorizeTimeoutKeepsRecord(t *testing.T) {
	gw := &fakeGateway{enabled: true, memorizeRes: memu.MemorizeResult{TaskID: "slow", Status: memu.StatusTimeout}}
	env := newTestEnv(t, gw, Options{})
	src := env.writeSource(t, "img.png", []byte{0x89, 'P', 'N', 'G'})

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{src}, Owner: owner})
	item := res.Items[0]
	require.NotEmpty(t, item.RecordID)
	assert.Equal(t, index.MemorizeTimeout, item.MemorizeStatus)

	rec, err := env.store.Get(item.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, index.CategoryImage, rec.Category)
	assert.Equal(t, index.MemorizeTimeout, rec.MemorizeStatus)
}

func TestUploadMemorizeErrorReported(t *testing.T) {
	gw := &fakeGateway{enabled: true, memorizeRes: memu.MemorizeResult{Error: "HTTP 503"}}
	env := newTestEnv(t, gw, Options{})
	src := env.writeSource(t, "x.bin", []byte{1})

	item := env.svc.UploadFiles(UploadRequest{Paths: []string{src}, Owner: owner}).Items[0]
	assert.Equal(t, "memorize: HTTP 503", item.Error)
	assert.Equal(t, index.MemorizeFailed, item.MemorizeStatus)

	rec, err := env.store.Get(item.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, "HTTP 503", rec.MemuError)
}

func TestInferCategory(t *testing.T) {
	cases := map[string]index.Category{
		"a.PDF":  index.CategoryPaper,
		"b.docx": index.CategoryProposal,
		"c.md":   index.CategoryProposal,
		"d.xlsx": index.CategoryData,
		"e.json": index.CategoryData,
		"f.jpeg": index.CategoryImage,
		"g.tex":  index.CategoryOther,
		"noext":  index.CategoryOther,
	}
	for name, want := range cases {
		assert.Equal(t, want, inferCategory(name), name)
	}
}

func TestReadSummary(t *testing.T) {
	dir := t.TempDir()

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String("héllo wörld")
	require.NoError(t, err)
	p := filepath.Join(dir, "wide.txt")
	require.NoError(t, os.WriteFile(p, []byte(utf16), 0644))
	assert.Equal(t, "héllo wörld", readSummary(p))

	var csv bytes.Buffer
	for i := 0; i < 150; i++ {
		csv.WriteString("row\n")
	}
	p = filepath.Join(dir, "big.csv")
	require.NoError(t, os.WriteFile(p, csv.Bytes(), 0644))
	assert.Equal(t, strings.Repeat("row\n", csvSummaryLines), readSummary(p))

	p = filepath.Join(dir, "long.md")
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("é", 5000)), 0644))
	assert.Len(t, []rune(readSummary(p)), summaryMaxChars)
}

func TestUploadWithoutWaitStoresTaskID(t *testing.T) {
	gw := &fakeGateway{enabled: true, memorizeRes: memu.MemorizeResult{TaskID: "task-nowait"}}
	env := newTestEnv(t, gw, Options{})
	env.svc.wait = false
	src := env.writeSource(t, "notes.md", []byte("# notes\n"))

	res := env.svc.UploadFiles(UploadRequest{Paths: []string{src}, Owner: owner})
	item := res.Items[0]
	require.Empty(t, item.Error)
	assert.Equal(t, "task-nowait", item.TaskID)
	assert.Equal(t, index.MemorizePending, item.MemorizeStatus)

	rec, err := env.store.Get(item.RecordID, owner)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "task-nowait", rec.TaskID)
	assert.Equal(t, index.MemorizePending, rec.MemorizeStatus)

	ok, err := env.store.SetMemorizeOutcome(rec.RecordID, owner, rec.TaskID, index.MemorizeSuccess, "")
	require.NoError(t, err)
	assert.True(t, ok, "pending record can still be settled")
}
