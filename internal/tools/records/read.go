package records

import (
	"context"
	"encoding/json"

	"github.com/alucardeht/memvault/internal/tools"
	"github.com/alucardeht/memvault/internal/vault"
)

type ListTool struct{ base }

func (t *ListTool) Name() string { return "records_list" }

func (t *ListTool) Title() string { return "List Records" }

func (t *ListTool) Description() string {
	return "List an owner's records, newest first, optionally filtered by category."
}

func (t *ListTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"},
			"category": {"type": "string", "enum": ["paper", "proposal", "data", "image", "writing_event", "parameter_recommendation", "other"]},
			"limit": {"type": "integer", "minimum": 1, "default": 50}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Category string `json:"category"`
		Limit    int    `json:"limit"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}

	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	records, err := t.svc.ListRecords(t.owner(req.ownerInput), category, req.Limit)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"records": records,
		"count":   len(records),
	}, nil
}

type GetTool struct{ base }

func (t *GetTool) Name() string { return "records_get" }

func (t *GetTool) Title() string { return "Get Record" }

func (t *GetTool) Description() string { return "Fetch one record by id." }

func (t *GetTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *GetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["record_id"]
	}`)
}

func (t *GetTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		RecordID string `json:"record_id"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if req.RecordID == "" {
		return nil, tools.NewInvalidParamsError("record_id is required")
	}

	rec, err := t.svc.GetRecord(req.RecordID, t.owner(req.ownerInput))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, tools.NewNotFoundError("record not found: %s", req.RecordID)
	}
	return rec, nil
}

type MatchTool struct{ base }

func (t *MatchTool) Name() string { return "records_match" }

func (t *MatchTool) Title() string { return "Match Records" }

func (t *MatchTool) Description() string {
	return `Find records for a free-text query and resolve their storage folders.

Cloud memory markers are used first; when none come back, the newest records
are scanned locally by description and file name.`
}

func (t *MatchTool) Annotations() map[string]bool {
	return tools.OpenWorld(tools.ReadOnlyAnnotations())
}

func (t *MatchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"limit": {"type": "integer", "minimum": 1},
			"rewrite": {"type": "boolean", "default": false},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["query"]
	}`)
}

func (t *MatchTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Query   string `json:"query"`
		Limit   int    `json:"limit"`
		Rewrite bool   `json:"rewrite"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}

	return t.svc.MatchAndResolve(ctx, vault.MatchRequest{
		Query:   req.Query,
		Owner:   t.owner(req.ownerInput),
		Limit:   req.Limit,
		Rewrite: req.Rewrite,
	}), nil
}

type SearchTool struct{ base }

func (t *SearchTool) Name() string { return "records_search" }

func (t *SearchTool) Title() string { return "Search Records" }

func (t *SearchTool) Description() string {
	return "Search cloud memory and local records by file name, user note, writing query or category."
}

func (t *SearchTool) Annotations() map[string]bool {
	return tools.OpenWorld(tools.ReadOnlyAnnotations())
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"category": {"type": "string"},
			"limit": {"type": "integer", "minimum": 1, "default": 20},
			"rewrite": {"type": "boolean", "default": false},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		}
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Query    string `json:"query"`
		Category string `json:"category"`
		Limit    int    `json:"limit"`
		Rewrite  bool   `json:"rewrite"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}

	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}

	return t.svc.Search(ctx, vault.SearchRequest{
		Query:    req.Query,
		Owner:    t.owner(req.ownerInput),
		Category: category,
		Limit:    req.Limit,
		Rewrite:  req.Rewrite,
	})
}

type DownloadInfoTool struct{ base }

func (t *DownloadInfoTool) Name() string { return "records_download_info" }

func (t *DownloadInfoTool) Title() string { return "Record Download Info" }

func (t *DownloadInfoTool) Description() string {
	return "Resolve a record's storage folder, primary file and category-specific auxiliary files."
}

func (t *DownloadInfoTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *DownloadInfoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["record_id"]
	}`)
}

func (t *DownloadInfoTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		RecordID string `json:"record_id"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if req.RecordID == "" {
		return nil, tools.NewInvalidParamsError("record_id is required")
	}

	info, err := t.svc.GetDownloadInfo(req.RecordID, t.owner(req.ownerInput))
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, tools.NewNotFoundError("record not found: %s", req.RecordID)
	}
	return info, nil
}

type MemoryContextTool struct{ base }

func (t *MemoryContextTool) Name() string { return "memory_context" }

func (t *MemoryContextTool) Title() string { return "Memory Context" }

func (t *MemoryContextTool) Description() string {
	return "Retrieve cloud memories about a topic as plain text for a writing prompt."
}

func (t *MemoryContextTool) Annotations() map[string]bool {
	return tools.OpenWorld(tools.ReadOnlyAnnotations())
}

func (t *MemoryContextTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"topic": {"type": "string"},
			"max_chars": {"type": "integer", "minimum": 1, "default": 4000},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"required": ["topic"]
	}`)
}

func (t *MemoryContextTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Topic    string `json:"topic"`
		MaxChars int    `json:"max_chars"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}

	text := t.svc.MemoryContext(ctx, req.Topic, t.owner(req.ownerInput), req.MaxChars)
	return map[string]interface{}{
		"context":         text,
		"gateway_enabled": t.svc.GatewayEnabled(),
	}, nil
}

type OrphansTool struct {
	base
	orphans OrphanSource
}

func (t *OrphansTool) Name() string { return "storage_orphans" }

func (t *OrphansTool) Title() string { return "Storage Orphans" }

func (t *OrphansTool) Description() string {
	return "List records whose storage folder was removed outside the vault. Set scan to check every record now."
}

func (t *OrphansTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *OrphansTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"scan": {"type": "boolean", "default": false},
			"user_id": {"type": "string"},
			"agent_id": {"type": "string"}
		}
	}`)
}

func (t *OrphansTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ownerInput
		Scan bool `json:"scan"`
	}
	if err := decode(input, &req); err != nil {
		return nil, err
	}

	owner := t.owner(req.ownerInput)
	orphans := t.orphans.Orphans(owner)
	if req.Scan {
		orphans = t.orphans.ScanOwner(owner)
	}

	return map[string]interface{}{
		"orphans": orphans,
		"count":   len(orphans),
	}, nil
}
