package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/memu"
	"github.com/alucardeht/memvault/internal/storage"
)

const (
	taskWritingEvent   = "writing_event"
	writingAckMessage  = "Writing event recorded for retrieval."
	artifactAckMessage = "Stored. This result has been recorded for later retrieval and download."
)

var writingEventSidecars = []string{"SUMMARY.md", "PEER_REVIEW.md"}

type WritingEventRequest struct {
	JobID           string      `json:"job_id"`
	Query           string      `json:"query"`
	DataFiles       []string    `json:"data_files,omitempty"`
	OutputPDF       string      `json:"output_pdf,omitempty"`
	OutputTeX       string      `json:"output_tex,omitempty"`
	OutputDirectory string      `json:"output_directory,omitempty"`
	Owner           index.Owner `json:"owner"`
}

type RecordResult struct {
	RecordID string        `json:"record_id"`
	TaskID   string        `json:"task_id,omitempty"`
	Record   *index.Record `json:"record"`
	Error    string        `json:"error,omitempty"`
}

// RegisterWritingEvent packages one writing job. When OutputDirectory exists
// the output pdf (or the first final/*.pdf) and the summary and review
// documents are copied into the record folder before the row is inserted.
func (s *Service) RegisterWritingEvent(req WritingEventRequest) (*RecordResult, error) {
	recordID := s.newID()
	owner := req.Owner

	var originalPath, fileName, folder string

	if st, err := os.Stat(req.OutputDirectory); req.OutputDirectory != "" && err == nil && st.IsDir() {
		folder = storage.BuildPath(s.root, owner.UserID, owner.AgentID, index.CategoryWritingEvent, recordID)
		if err := os.MkdirAll(folder, 0755); err != nil {
			return nil, fmt.Errorf("create storage folder: %w", err)
		}

		var err error
		fileName, err = copyWritingOutputs(req, folder)
		if err != nil {
			os.RemoveAll(folder)
			return nil, err
		}
		originalPath = storage.RelativePath(index.CategoryWritingEvent, recordID)
	}

	outputPDF := req.OutputPDF
	if outputPDF == "" {
		outputPDF = fileName
	}

	description := fmt.Sprintf(
		"[MEMU_REF record_id=%s category=%s job_id=%s]\n\nWriting event.\nQuery: %s\nData files: %s\nOutput PDF: %s\nOutput TeX: %s",
		recordID, index.CategoryWritingEvent, req.JobID, req.Query, strings.Join(req.DataFiles, ", "), outputPDF, req.OutputTeX,
	)

	rec := &index.Record{
		RecordID:     recordID,
		Category:     index.CategoryWritingEvent,
		OriginalPath: originalPath,
		FileName:     fileName,
		Description:  description,
		Owner:        owner,
		CreatedAt:    s.now(),
		JobID:        req.JobID,
		Query:        req.Query,
		DataFiles:    append([]string{}, req.DataFiles...),
		OutputPDF:    outputPDF,
		OutputTeX:    req.OutputTeX,
	}

	return s.insertAndMemorize(rec, folder, taskWritingEvent, writingAckMessage)
}

func copyWritingOutputs(req WritingEventRequest, folder string) (string, error) {
	var pdf string
	if req.OutputPDF != "" {
		if st, err := os.Stat(req.OutputPDF); err == nil && st.Mode().IsRegular() {
			pdf = req.OutputPDF
		}
	}
	if pdf == "" {
		matches, _ := doublestar.Glob(os.DirFS(req.OutputDirectory), "final/*.pdf", doublestar.WithFilesOnly())
		if len(matches) > 0 {
			sort.Strings(matches)
			pdf = filepath.Join(req.OutputDirectory, filepath.FromSlash(matches[0]))
		}
	}

	var fileName string
	if pdf != "" {
		fileName = filepath.Base(pdf)
		if _, err := copyFileContents(pdf, filepath.Join(folder, fileName)); err != nil {
			return "", fmt.Errorf("copy %s: %w", fileName, err)
		}
	}

	for _, name := range writingEventSidecars {
		src := filepath.Join(req.OutputDirectory, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if _, err := copyFileContents(src, filepath.Join(folder, name)); err != nil {
			return "", fmt.Errorf("copy %s: %w", name, err)
		}
	}

	return fileName, nil
}

type ArtifactRequest struct {
	Category    index.Category    `json:"category"`
	Files       map[string][]byte `json:"files"`
	PrimaryFile string            `json:"primary_file,omitempty"`
	Summary     string            `json:"summary"`
	UserInput   string            `json:"user_input,omitempty"`
	Query       string            `json:"query,omitempty"`
	JobID       string            `json:"job_id,omitempty"`
	DataFiles   []string          `json:"data_files,omitempty"`
	Owner       index.Owner       `json:"owner"`
}

// SaveArtifact writes generated files into a fresh record folder and then
// indexes them, for producers such as parameter recommendation.
func (s *Service) SaveArtifact(req ArtifactRequest) (*RecordResult, error) {
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArtifact, req.Category)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidArtifact)
	}

	names := make([]string, 0, len(req.Files))
	for name := range req.Files {
		if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
			return nil, fmt.Errorf("%w: bad file name %q", ErrInvalidArtifact, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	primary := req.PrimaryFile
	if primary == "" {
		primary = names[0]
	}
	if _, ok := req.Files[primary]; !ok {
		return nil, fmt.Errorf("%w: primary file %q not among files", ErrInvalidArtifact, primary)
	}

	recordID := s.newID()
	owner := req.Owner
	folder := storage.BuildPath(s.root, owner.UserID, owner.AgentID, req.Category, recordID)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("create storage folder: %w", err)
	}

	for _, name := range names {
		if err := writeFileSync(filepath.Join(folder, name), req.Files[name]); err != nil {
			os.RemoveAll(folder)
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[MEMU_REF record_id=%s category=%s file=%s]\n\n", recordID, req.Category, primary)
	sb.WriteString(truncateRunes(req.Summary, summaryMaxChars))
	if note := strings.TrimSpace(req.UserInput); note != "" {
		sb.WriteString("\n\nUser note: ")
		sb.WriteString(note)
	}

	rec := &index.Record{
		RecordID:     recordID,
		Category:     req.Category,
		OriginalPath: storage.RelativePath(req.Category, recordID),
		FileName:     primary,
		Description:  sb.String(),
		UserInput:    strings.TrimSpace(req.UserInput),
		Owner:        owner,
		CreatedAt:    s.now(),
		JobID:        req.JobID,
		Query:        req.Query,
		DataFiles:    append([]string{}, req.DataFiles...),
	}

	return s.insertAndMemorize(rec, folder, string(req.Category), artifactAckMessage)
}

// insertAndMemorize indexes rec once its folder is complete, then submits it
// to the gateway. Memorize failures are reported on the result, not returned.
func (s *Service) insertAndMemorize(rec *index.Record, folder, task, ack string) (*RecordResult, error) {
	if s.GatewayEnabled() {
		rec.MemorizeStatus = index.MemorizePending
	}

	if err := s.index.Insert(rec); err != nil {
		if folder != "" {
			os.RemoveAll(folder)
		}
		return nil, fmt.Errorf("index record: %w", err)
	}

	log.Info("record stored", "record_id", rec.RecordID, "category", rec.Category, "user_id", rec.Owner.UserID)

	result := &RecordResult{RecordID: rec.RecordID, Record: rec}
	if s.GatewayEnabled() {
		res := s.memorize(rec, task, []memu.Message{
			{Role: "user", Content: rec.Description},
			{Role: "assistant", Content: ack},
		})
		result.TaskID = res.TaskID
		result.Error = res.Error
	}

	return result, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
