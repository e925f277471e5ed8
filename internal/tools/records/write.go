package records

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/alucardeht/memvault/internal/tools"
	"github.com/alucardeht/memvault/internal/vault"
)

type DownloadTool struct{ base }

func (t *DownloadTool) Name() string { return "records_download" }

func (t *DownloadTool) Title() string { return "Download Record" }

func (t *DownloadTool) Description() string {
	return "Copy a record's primary file into a destination directory and log the download."
}

func (t *DownloadTool) Annotations() map[string]bool { return tools.NonIdempotentWriteAnnotations() }

func (t *DownloadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"dest_dir": {"type": "string", "description": "Defaults to the configured downloads directory"},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["record_id"]
	}`)
}

func (t *DownloadTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		RecordID string `json:"record_id"`
		DestDir  string `json:"dest_dir"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if req.RecordID == "" {
		return nil, tools.NewInvalidParamsError("record_id is required")
	}
	if req.DestDir == "" {
		req.DestDir = t.defaults.DownloadsDir
	}
	if req.DestDir == "" {
		return nil, tools.NewInvalidParamsError("dest_dir is required")
	}

	res, err := t.svc.DownloadToPath(req.RecordID, req.DestDir, t.owner(req.ownerInput))
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrRecordNotFound),
			errors.Is(err, vault.ErrStorageFolderNotFound),
			errors.Is(err, vault.ErrNoFileInFolder):
			return nil, tools.NewNotFoundError("%v", err)
		}
		return nil, err
	}
	return res, nil
}

type DeleteTool struct{ base }

func (t *DeleteTool) Name() string { return "records_delete" }

func (t *DeleteTool) Title() string { return "Delete Records" }

func (t *DeleteTool) Description() string {
	return `Delete records by id. With remove_from_storage the record folders inside
the owner's storage tree are removed as well. Ids belonging to other owners are skipped.`
}

func (t *DeleteTool) Annotations() map[string]bool {
	return tools.DestructiveAnnotations()
}

func (t *DeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_ids": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"remove_from_storage": {"type": "boolean", "default": false},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["record_ids"]
	}`)
}

func (t *DeleteTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		RecordIDs         []string `json:"record_ids"`
		RemoveFromStorage bool     `json:"remove_from_storage"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if len(req.RecordIDs) == 0 {
		return nil, tools.NewInvalidParamsError("record_ids is required")
	}

	deleted, err := t.svc.Delete(req.RecordIDs, t.owner(req.ownerInput), req.RemoveFromStorage)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"deleted":    deleted,
		"record_ids": req.RecordIDs,
	}, nil
}

type UploadTool struct{ base }

func (t *UploadTool) Name() string { return "records_upload" }

func (t *UploadTool) Title() string { return "Upload Files" }

func (t *UploadTool) Description() string {
	return `Store local files as records. Each file gets its own record folder, a
category inferred from its extension unless given, and a memorize call when the
cloud gateway is configured. Per-file failures are reported on each item.`
}

func (t *UploadTool) Annotations() map[string]bool {
	return tools.OpenWorld(tools.NonIdempotentWriteAnnotations())
}

func (t *UploadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"paths": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"category": {"type": "string"},
			"user_input": {"type": "string"},
			"simplified_path": {"type": "string"},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["paths"]
	}`)
}

func (t *UploadTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Paths          []string `json:"paths"`
		Category       string   `json:"category"`
		UserInput      string   `json:"user_input"`
		SimplifiedPath string   `json:"simplified_path"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if len(req.Paths) == 0 {
		return nil, tools.NewInvalidParamsError("paths is required")
	}

	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}

	return t.svc.UploadFiles(vault.UploadRequest{
		Paths:          req.Paths,
		Category:       category,
		UserInput:      req.UserInput,
		SimplifiedPath: req.SimplifiedPath,
		Owner:          t.owner(req.ownerInput),
	}), nil
}

type WritingEventTool struct{ base }

func (t *WritingEventTool) Name() string { return "records_writing_event" }

func (t *WritingEventTool) Title() string { return "Register Writing Event" }

func (t *WritingEventTool) Description() string {
	return "Record a finished writing job, copying its PDF, SUMMARY.md and PEER_REVIEW.md from output_directory."
}

func (t *WritingEventTool) Annotations() map[string]bool {
	return tools.OpenWorld(tools.NonIdempotentWriteAnnotations())
}

func (t *WritingEventTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"job_id": {"type": "string"},
			"query": {"type": "string"},
			"data_files": {"type": "array", "items": {"type": "string"}},
			"output_pdf": {"type": "string"},
			"output_tex": {"type": "string"},
			"output_directory": {"type": "string"},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["job_id"]
	}`)
}

func (t *WritingEventTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		JobID           string   `json:"job_id"`
		Query           string   `json:"query"`
		DataFiles       []string `json:"data_files"`
		OutputPDF       string   `json:"output_pdf"`
		OutputTeX       string   `json:"output_tex"`
		OutputDirectory string   `json:"output_directory"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if req.JobID == "" {
		return nil, tools.NewInvalidParamsError("job_id is required")
	}

	return t.svc.RegisterWritingEvent(vault.WritingEventRequest{
		JobID:           req.JobID,
		Query:           req.Query,
		DataFiles:       req.DataFiles,
		OutputPDF:       req.OutputPDF,
		OutputTeX:       req.OutputTeX,
		OutputDirectory: req.OutputDirectory,
		Owner:           t.owner(req.ownerInput),
	})
}

type SaveArtifactTool struct{ base }

func (t *SaveArtifactTool) Name() string { return "records_save_artifact" }

func (t *SaveArtifactTool) Title() string { return "Save Artifact" }

func (t *SaveArtifactTool) Description() string {
	return "Persist generated text files, such as a parameter recommendation summary and its JSON, as one record."
}

func (t *SaveArtifactTool) Annotations() map[string]bool {
	return tools.NonIdempotentWriteAnnotations()
}

func (t *SaveArtifactTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string"},
			"files": {"type": "object", "additionalProperties": {"type": "string"}},
			"primary_file": {"type": "string"},
			"summary": {"type": "string"},
			"user_input": {"type": "string"},
			"query": {"type": "string"},
			"job_id": {"type": "string"},
			"data_files": {"type": "array", "items": {"type": "string"}},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["category", "files"]
	}`)
}

func (t *SaveArtifactTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Category    string            `json:"category"`
		Files       map[string]string `json:"files"`
		PrimaryFile string            `json:"primary_file"`
		Summary     string            `json:"summary"`
		UserInput   string            `json:"user_input"`
		Query       string            `json:"query"`
		JobID       string            `json:"job_id"`
		DataFiles   []string          `json:"data_files"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}

	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, tools.NewInvalidParamsError("category is required")
	}

	files := make(map[string][]byte, len(req.Files))
	for name, content := range req.Files {
		files[name] = []byte(content)
	}

	res, err := t.svc.SaveArtifact(vault.ArtifactRequest{
		Category:    *category,
		Files:       files,
		PrimaryFile: req.PrimaryFile,
		Summary:     req.Summary,
		UserInput:   req.UserInput,
		Query:       req.Query,
		JobID:       req.JobID,
		DataFiles:   req.DataFiles,
		Owner:       t.owner(req.ownerInput),
	})
	if err != nil {
		if errors.Is(err, vault.ErrInvalidArtifact) {
			return nil, tools.NewInvalidParamsError("%v", err)
		}
		return nil, err
	}
	return res, nil
}
