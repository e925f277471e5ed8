package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/storage"
)

const (
	taskUpload       = "upload"
	uploadAckMessage = "Stored. This file has been recorded for later retrieval and download."
)

type UploadRequest struct {
	Paths          []string        `json:"paths"`
	Category       *index.Category `json:"category,omitempty"`
	UserInput      string          `json:"user_input,omitempty"`
	SimplifiedPath string          `json:"simplified_path,omitempty"`
	Owner          index.Owner     `json:"owner"`
}

type UploadItem struct {
	Source         string               `json:"source"`
	RecordID       string               `json:"record_id,omitempty"`
	Record         *index.Record        `json:"record,omitempty"`
	TaskID         string               `json:"task_id,omitempty"`
	MemorizeStatus index.MemorizeStatus `json:"memorize_status,omitempty"`
	Error          string               `json:"error,omitempty"`
}

type UploadResult struct {
	Items           []*UploadItem `json:"items"`
	RecordIDs       []string      `json:"record_ids"`
	TaskIDs         []string      `json:"task_ids"`
	GatewayDisabled bool          `json:"gateway_disabled,omitempty"`
}

// UploadFiles stores each file under its own record, sequentially. A failure
// on one file is reported on its item and does not undo earlier files.
func (s *Service) UploadFiles(req UploadRequest) *UploadResult {
	result := &UploadResult{
		Items:           make([]*UploadItem, 0, len(req.Paths)),
		RecordIDs:       []string{},
		TaskIDs:         []string{},
		GatewayDisabled: !s.GatewayEnabled(),
	}

	for _, path := range req.Paths {
		item := s.uploadOne(path, req)
		result.Items = append(result.Items, item)
		if item.RecordID != "" {
			result.RecordIDs = append(result.RecordIDs, item.RecordID)
		}
		if item.TaskID != "" {
			result.TaskIDs = append(result.TaskIDs, item.TaskID)
		}
	}

	return result
}

func (s *Service) uploadOne(path string, req UploadRequest) *UploadItem {
	item := &UploadItem{Source: path}

	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		item.Error = fmt.Sprintf("%v: %s", ErrSourceNotFound, path)
		return item
	}

	category := inferCategory(path)
	if req.Category != nil && req.Category.Valid() {
		category = *req.Category
	}

	recordID := s.newID()
	name := filepath.Base(path)
	folder := storage.BuildPath(s.root, req.Owner.UserID, req.Owner.AgentID, category, recordID)

	if err := os.MkdirAll(folder, 0755); err != nil {
		item.Error = fmt.Sprintf("create storage folder: %v", err)
		return item
	}
	if _, err := copyFileContents(path, filepath.Join(folder, name)); err != nil {
		os.RemoveAll(folder)
		item.Error = fmt.Sprintf("copy into storage: %v", err)
		return item
	}

	userInput := strings.TrimSpace(req.UserInput)
	description := uploadDescription(recordID, category, path, userInput)

	rec := &index.Record{
		RecordID:       recordID,
		Category:       category,
		OriginalPath:   storage.RelativePath(category, recordID),
		FileName:       name,
		SimplifiedPath: req.SimplifiedPath,
		Description:    description,
		UserInput:      userInput,
		Owner:          req.Owner,
		CreatedAt:      s.now(),
	}
	res, err := s.insertAndMemorize(rec, folder, taskUpload, uploadAckMessage)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	item.RecordID = recordID
	item.Record = rec
	item.TaskID = res.TaskID
	item.MemorizeStatus = rec.MemorizeStatus
	if res.Error != "" {
		item.Error = "memorize: " + res.Error
	}

	return item
}

func uploadDescription(recordID string, category index.Category, path, userInput string) string {
	name := filepath.Base(path)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[MEMU_REF record_id=%s category=%s file=%s]\n\n", recordID, category, name)
	fmt.Fprintf(&sb, "File: %s\nType: %s\nCategory: %s\n\n", name, filepath.Ext(name), category)
	sb.WriteString("Content or summary:\n")
	sb.WriteString(readSummary(path))
	if userInput != "" {
		sb.WriteString("\n\nUser note: ")
		sb.WriteString(userInput)
	}
	return sb.String()
}
