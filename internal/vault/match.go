package vault

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"

	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/memu"
	"github.com/alucardeht/memvault/internal/rewrite"
)

const descriptionPreviewChars = 500

type MatchRequest struct {
	Query   string      `json:"query"`
	Owner   index.Owner `json:"owner"`
	Limit   int         `json:"limit,omitempty"`
	Rewrite bool        `json:"rewrite,omitempty"`
}

// ResolvedRecord is a record plus where it currently lives on disk. Both
// resolved fields are empty when the folder cannot be found.
type ResolvedRecord struct {
	index.Record
	ResolvedStorageFolder string `json:"resolved_storage_folder,omitempty"`
	ResolvedPrimaryPath   string `json:"resolved_primary_path,omitempty"`
}

type MatchResult struct {
	Query          string            `json:"query"`
	EffectiveQuery string            `json:"effective_query,omitempty"`
	MatchedIDs     []string          `json:"matched_record_ids"`
	Records        []*ResolvedRecord `json:"records"`
	CloudResponse  json.RawMessage   `json:"cloud_response,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// MatchAndResolve finds records for a free-text query. Cloud markers win;
// without any, recent owner records are scanned locally. Either way at most
// limit ids are resolved. A cloud error is reported only when nothing matched.
func (s *Service) MatchAndResolve(ctx context.Context, req MatchRequest) *MatchResult {
	limit := req.Limit
	if limit <= 0 {
		limit = s.scenarios.TopK(req.Owner.AgentID)
	}

	effective := req.Query
	if req.Rewrite {
		effective = rewrite.Apply(ctx, s.rewriter, req.Query)
	}

	result := &MatchResult{
		Query:      req.Query,
		MatchedIDs: []string{},
		Records:    []*ResolvedRecord{},
	}
	if req.Rewrite {
		result.EffectiveQuery = effective
	}

	var cloudErr string
	var ids []string

	if s.GatewayEnabled() {
		override := s.scenarios.RetrieveConfig(req.Owner.AgentID)
		cloud := s.gateway.Retrieve(ctx, effective, req.Owner.UserID, req.Owner.AgentID, override)
		if cloud.Error != "" {
			cloudErr = cloud.Error
			log.Warn("cloud retrieve failed", "user_id", req.Owner.UserID, "agent_id", req.Owner.AgentID, "error", cloud.Error)
		} else {
			if json.Valid(cloud.Raw) {
				result.CloudResponse = cloud.Raw
			}
			ids = memu.ExtractRecordIDs(cloud.Raw)
			if len(ids) > limit {
				ids = ids[:limit]
			}
		}
	}

	if len(ids) == 0 && strings.TrimSpace(req.Query) != "" {
		local, err := s.localMatch(req.Owner, req.Query, limit)
		if err != nil {
			log.Error("local match failed", "user_id", req.Owner.UserID, "error", err)
		}
		ids = local
	}

	for _, id := range ids {
		rec, err := s.index.Get(id, req.Owner)
		if err != nil {
			log.Error("failed to load matched record", "record_id", id, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		result.MatchedIDs = append(result.MatchedIDs, id)
		result.Records = append(result.Records, s.resolveRecord(rec, descriptionPreviewChars))
	}

	if len(result.MatchedIDs) == 0 && cloudErr != "" {
		result.Error = cloudErr
	}

	log.Debug("match resolved", "user_id", req.Owner.UserID, "agent_id", req.Owner.AgentID, "matched", len(result.MatchedIDs))
	return result
}

// localMatch keeps recency order over the limit*3 newest owner records.
func (s *Service) localMatch(owner index.Owner, query string, limit int) ([]string, error) {
	recent, err := s.index.List(owner, nil, limit*3)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))

	var ids []string
	for _, rec := range recent {
		if len(ids) >= limit {
			break
		}
		if strings.Contains(fold.String(rec.Description), needle) || strings.Contains(fold.String(rec.FileName), needle) {
			ids = append(ids, rec.RecordID)
		}
	}
	return ids, nil
}

func (s *Service) resolveRecord(rec *index.Record, previewChars int) *ResolvedRecord {
	out := &ResolvedRecord{Record: *rec}
	if previewChars > 0 {
		out.Description = truncateRunes(out.Description, previewChars)
	}

	folder, ok := s.resolve(rec)
	if !ok {
		return out
	}
	out.ResolvedStorageFolder = folder
	if primary, ok := primaryFile(folder, rec); ok {
		out.ResolvedPrimaryPath = primary
	}
	return out
}

type SearchRequest struct {
	Query    string          `json:"query"`
	Owner    index.Owner     `json:"owner"`
	Category *index.Category `json:"category,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Rewrite  bool            `json:"rewrite,omitempty"`
}

type SearchResult struct {
	Query          string          `json:"query"`
	EffectiveQuery string          `json:"effective_query,omitempty"`
	Cloud          json.RawMessage `json:"cloud,omitempty"`
	LocalRecords   []*index.Record `json:"local_records"`
	Error          string          `json:"error,omitempty"`
}

// Search returns the raw cloud answer next to local hits on file name, user
// input, writing query and category. Unlike MatchAndResolve the cloud error
// is always surfaced.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	effective := req.Query
	if req.Rewrite {
		effective = rewrite.Apply(ctx, s.rewriter, req.Query)
	}

	result := &SearchResult{Query: req.Query, LocalRecords: []*index.Record{}}
	if req.Rewrite {
		result.EffectiveQuery = effective
	}

	if s.GatewayEnabled() {
		override := s.scenarios.RetrieveConfig(req.Owner.AgentID)
		cloud := s.gateway.Retrieve(ctx, effective, req.Owner.UserID, req.Owner.AgentID, override)
		result.Error = cloud.Error
		if json.Valid(cloud.Raw) {
			result.Cloud = cloud.Raw
		}
	}

	recent, err := s.index.List(req.Owner, req.Category, limit*2)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(req.Query))
	for _, rec := range recent {
		if len(result.LocalRecords) >= limit {
			break
		}
		if needle != "" {
			haystack := fold.String(strings.Join([]string{rec.FileName, rec.UserInput, rec.Query, string(rec.Category)}, " "))
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		result.LocalRecords = append(result.LocalRecords, rec)
	}

	return result, nil
}

// MemoryContext retrieves memories about topic and flattens them for a
// writing prompt. It returns "" when the gateway is disabled or fails.
func (s *Service) MemoryContext(ctx context.Context, topic string, owner index.Owner, maxChars int) string {
	if !s.GatewayEnabled() {
		return ""
	}
	override := s.scenarios.RetrieveConfig(owner.AgentID)
	cloud := s.gateway.Retrieve(ctx, topic, owner.UserID, owner.AgentID, override)
	if cloud.Error != "" {
		log.Warn("memory context retrieve failed", "user_id", owner.UserID, "error", cloud.Error)
		return ""
	}
	return memu.FormatForWriting(cloud.Raw, maxChars)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
