package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/storage"
)

type auxFile struct {
	key     string
	pattern string
}

// auxiliary files a category keeps next to its primary file
var auxFiles = map[index.Category][]auxFile{
	index.CategoryPaper: {
		{key: "structured_json_path", pattern: "structured.json"},
		{key: "summary_md_path", pattern: "summary.md"},
	},
	index.CategoryParameterRecommendation: {
		{key: "summary_md_path", pattern: "summary.md"},
		{key: "recommendations_json_path", pattern: "recommendations.json"},
	},
	index.CategoryWritingEvent: {
		{key: "summary_md_path", pattern: "SUMMARY.md"},
		{key: "peer_review_md_path", pattern: "PEER_REVIEW.md"},
	},
}

type DownloadInfo struct {
	ResolvedRecord
	AuxiliaryFiles map[string]string `json:"auxiliary_files,omitempty"`
}

type DownloadResult struct {
	RecordID  string `json:"record_id"`
	SavedPath string `json:"saved_path"`
	FileName  string `json:"file_name"`
}

// GetDownloadInfo returns nil, nil when the record does not exist for owner.
func (s *Service) GetDownloadInfo(recordID string, owner index.Owner) (*DownloadInfo, error) {
	rec, err := s.index.Get(recordID, owner)
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", recordID, err)
	}
	if rec == nil {
		return nil, nil
	}

	info := &DownloadInfo{ResolvedRecord: *s.resolveRecord(rec, 0)}
	folder := info.ResolvedStorageFolder

	if folder != "" {
		fsys := os.DirFS(folder)
		for _, aux := range auxFiles[rec.Category] {
			if matches, _ := doublestar.Glob(fsys, aux.pattern); len(matches) > 0 {
				if info.AuxiliaryFiles == nil {
					info.AuxiliaryFiles = make(map[string]string)
				}
				info.AuxiliaryFiles[aux.key] = filepath.Join(folder, matches[0])
			}
		}
	}

	// legacy writing events only carry an absolute output pdf
	if rec.Category == index.CategoryWritingEvent && info.ResolvedPrimaryPath == "" && rec.OutputPDF != "" {
		if st, err := os.Stat(rec.OutputPDF); err == nil && st.Mode().IsRegular() && storage.IsAbsolute(rec.OutputPDF) {
			info.ResolvedPrimaryPath = rec.OutputPDF
		}
	}

	return info, nil
}

// DownloadToPath copies the record's primary file into destDir. The copy is
// staged in destDir and renamed only after its size is verified; the audit
// row is written after the rename.
func (s *Service) DownloadToPath(recordID, destDir string, owner index.Owner) (*DownloadResult, error) {
	info, err := s.GetDownloadInfo(recordID, owner)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	src := info.ResolvedPrimaryPath
	if src == "" {
		if info.ResolvedStorageFolder == "" {
			return nil, fmt.Errorf("%w: %s", ErrStorageFolderNotFound, recordID)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoFileInFolder, info.ResolvedStorageFolder)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create destination: %v", ErrCopy, err)
	}

	saved := filepath.Join(destDir, filepath.Base(src))
	if err := s.copyAtomic(src, saved); err != nil {
		log.Error("download copy failed", "record_id", recordID, "source", src, "error", err)
		return nil, err
	}

	if err := s.index.LogDownload(recordID, src, saved, owner.UserID); err != nil {
		return nil, fmt.Errorf("log download: %w", err)
	}

	log.Info("record downloaded", "record_id", recordID, "user_id", owner.UserID, "saved_path", saved)
	return &DownloadResult{RecordID: recordID, SavedPath: saved, FileName: filepath.Base(src)}, nil
}

func (s *Service) copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open source: %v", ErrCopy, err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat source: %v", ErrCopy, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrCopy, err)
	}
	tmpName := tmp.Name()

	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrCopy, step, err)
	}

	n, err := s.copyFile(tmp, in)
	if err != nil {
		return fail("write", err)
	}
	if n != st.Size() {
		return fail("verify", fmt.Errorf("copied %d of %d bytes", n, st.Size()))
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", ErrCopy, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", ErrCopy, err)
	}

	if err := os.Chtimes(dst, st.ModTime(), st.ModTime()); err != nil {
		log.Debug("failed to keep source mtime", "path", dst, "error", err)
	}
	return nil
}

// primaryFile prefers the record's file name, then for writing events the
// first pdf, else the first regular file by name.
func primaryFile(folder string, rec *index.Record) (string, bool) {
	if rec.FileName != "" {
		candidate := filepath.Join(folder, rec.FileName)
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			return candidate, true
		}
	}

	if rec.Category == index.CategoryWritingEvent {
		if pdfs, _ := doublestar.Glob(os.DirFS(folder), "*.pdf", doublestar.WithFilesOnly()); len(pdfs) > 0 {
			sort.Strings(pdfs)
			return filepath.Join(folder, pdfs[0]), true
		}
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return filepath.Join(folder, e.Name()), true
		}
	}
	return "", false
}

func copyFileContents(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}
