package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/memu"
)

func writingJobDir(t *testing.T, env *testEnv) string {
	t.Helper()
	job := filepath.Join(env.dir, "writing_outputs", "job-42")
	require.NoError(t, os.MkdirAll(filepath.Join(job, "final"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(job, "final", "report.pdf"), []byte("%PDF report"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(job, "SUMMARY.md"), []byte("# summary"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(job, "PEER_REVIEW.md"), []byte("# review"), 0644))
	return job
}

func TestRegisterWritingEvent(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	job := writingJobDir(t, env)

	res, err := env.svc.RegisterWritingEvent(WritingEventRequest{
		JobID:           "job-42",
		Query:           "write about alloys",
		DataFiles:       []string{"a.csv", "b.csv"},
		OutputTeX:       "/tmp/report.tex",
		OutputDirectory: job,
		Owner:           owner,
	})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, index.CategoryWritingEvent, rec.Category)
	assert.Equal(t, "writing_event/"+res.RecordID, rec.OriginalPath)
	assert.Equal(t, "report.pdf", rec.FileName)
	assert.Equal(t, "report.pdf", rec.OutputPDF)
	assert.Equal(t, []string{"a.csv", "b.csv"}, rec.DataFiles)
	assert.Contains(t, rec.Description, "job_id=job-42")
	assert.Contains(t, rec.Description, "Data files: a.csv, b.csv")

	info, err := env.svc.GetDownloadInfo(res.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(info.ResolvedStorageFolder, "report.pdf"), info.ResolvedPrimaryPath)
	assert.Equal(t, filepath.Join(info.ResolvedStorageFolder, "SUMMARY.md"), info.AuxiliaryFiles["summary_md_path"])
	assert.Equal(t, filepath.Join(info.ResolvedStorageFolder, "PEER_REVIEW.md"), info.AuxiliaryFiles["peer_review_md_path"])
}

func TestRegisterWritingEventWithoutDirectory(t *testing.T) {
	gw := &fakeGateway{enabled: true, memorizeRes: memu.MemorizeResult{TaskID: "w1", Status: memu.StatusSuccess}}
	env := newTestEnv(t, gw, Options{})

	res, err := env.svc.RegisterWritingEvent(WritingEventRequest{JobID: "j", Query: "q", OutputPDF: "/elsewhere/out.pdf", Owner: owner})
	require.NoError(t, err)
	assert.Empty(t, res.Record.OriginalPath)
	assert.Equal(t, "/elsewhere/out.pdf", res.Record.OutputPDF)
	assert.Equal(t, "w1", res.TaskID)
	assert.Equal(t, writingAckMessage, gw.memorized[0][1].Content)

	rec, err := env.store.Get(res.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, index.MemorizeSuccess, rec.MemorizeStatus)
}

func TestSaveArtifact(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	res, err := env.svc.SaveArtifact(ArtifactRequest{
		Category: index.CategoryParameterRecommendation,
		Files: map[string][]byte{
			"recommendations.json": []byte(`[{"temperature":450}]`),
			"summary.md":           []byte("# anneal at 450C"),
		},
		PrimaryFile: "summary.md",
		Summary:     "anneal at 450C",
		Query:       "best anneal temperature",
		Owner:       owner,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Record.Description, "file=summary.md]")

	info, err := env.svc.GetDownloadInfo(res.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(info.ResolvedStorageFolder, "summary.md"), info.ResolvedPrimaryPath)
	assert.Contains(t, info.AuxiliaryFiles, "recommendations_json_path")
	assert.Contains(t, info.AuxiliaryFiles, "summary_md_path")
}

func TestSaveArtifactRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	_, err := env.svc.SaveArtifact(ArtifactRequest{Category: "bogus", Files: map[string][]byte{"a": nil}, Owner: owner})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = env.svc.SaveArtifact(ArtifactRequest{Category: index.CategoryOther, Owner: owner})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = env.svc.SaveArtifact(ArtifactRequest{Category: index.CategoryOther, Files: map[string][]byte{"../escape": nil}, Owner: owner})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = env.svc.SaveArtifact(ArtifactRequest{Category: index.CategoryOther, Files: map[string][]byte{"a": nil}, PrimaryFile: "b", Owner: owner})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	recs, err := env.store.List(owner, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
