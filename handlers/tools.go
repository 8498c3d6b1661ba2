// ABOUTME: MCP tool handlers over the record store
// ABOUTME: Implements merge_record, list_records, delete_record, undo_delete, request_extraction, recent_merges and ping
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/sfcrm/db"
	"github.com/harperreed/sfcrm/extract"
	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

// ToolHandlers serves the MCP tools. journal and coordinator may be nil.
type ToolHandlers struct {
	merger      extract.Merger
	query       *query.Service
	coordinator *extract.Coordinator
	journal     *db.Journal
}

func NewToolHandlers(m extract.Merger, q *query.Service, c *extract.Coordinator, j *db.Journal) *ToolHandlers {
	return &ToolHandlers{merger: m, query: q, coordinator: c, journal: j}
}

type RecordOutput struct {
	ObjectType string                 `json:"object_type"`
	ID         string                 `json:"id"`
	Decision   string                 `json:"decision,omitempty"`
	Record     map[string]interface{} `json:"record"`
}

func resultToOutput(res merge.Result) RecordOutput {
	return RecordOutput{
		ObjectType: string(res.ObjectType),
		ID:         res.ID,
		Decision:   string(res.Decision),
		Record:     res.Record.Map(),
	}
}

type MergeRecordInput struct {
	ObjectType string                 `json:"object_type" jsonschema:"Object type: lead, contact, account, opportunity or task (required)"`
	Record     map[string]interface{} `json:"record" jsonschema:"Flat record of scalar fields; salesforceId and lastUpdated are used for keying and freshness"`
}

func (h *ToolHandlers) MergeRecord(ctx context.Context, _ *mcp.CallToolRequest, input MergeRecordInput) (*mcp.CallToolResult, RecordOutput, error) {
	t, err := models.ParseObjectType(input.ObjectType)
	if err != nil {
		return nil, RecordOutput{}, err
	}
	if input.Record == nil {
		return nil, RecordOutput{}, fmt.Errorf("record is required")
	}
	record, err := models.RecordFromMap(input.Record)
	if err != nil {
		return nil, RecordOutput{}, fmt.Errorf("invalid record: %w", err)
	}

	res, err := h.merger.MergeRecord(ctx, t, record)
	if err != nil {
		return nil, RecordOutput{}, fmt.Errorf("failed to merge record: %w", err)
	}
	return nil, resultToOutput(res), nil
}

type ListRecordsInput struct {
	ObjectType     string `json:"object_type" jsonschema:"Object type to list (required)"`
	IncludeDeleted bool   `json:"include_deleted,omitempty" jsonschema:"Include soft-deleted records"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default all)"`
}

type ListRecordsOutput struct {
	ObjectType string         `json:"object_type"`
	Records    []RecordOutput `json:"records"`
	Count      int            `json:"count"`
}

func (h *ToolHandlers) ListRecords(ctx context.Context, _ *mcp.CallToolRequest, input ListRecordsInput) (*mcp.CallToolResult, ListRecordsOutput, error) {
	t, err := models.ParseObjectType(input.ObjectType)
	if err != nil {
		return nil, ListRecordsOutput{}, err
	}
	entries, err := h.query.ListRecords(ctx, t)
	if err != nil {
		return nil, ListRecordsOutput{}, fmt.Errorf("failed to list records: %w", err)
	}
	if !input.IncludeDeleted {
		entries = query.Active(entries)
	}
	if input.Limit > 0 && len(entries) > input.Limit {
		entries = entries[:input.Limit]
	}

	out := ListRecordsOutput{ObjectType: string(t), Records: make([]RecordOutput, len(entries)), Count: len(entries)}
	for i, e := range entries {
		out.Records[i] = RecordOutput{ObjectType: string(t), ID: e.ID, Record: e.Record.Map()}
	}
	return nil, out, nil
}

type DeleteRecordInput struct {
	ObjectType string `json:"object_type" jsonschema:"Object type of the record (required)"`
	ID         string `json:"id" jsonschema:"Storage key of the record (required)"`
}

type DeleteRecordOutput struct {
	Deleted  RecordOutput `json:"deleted"`
	Previous RecordOutput `json:"previous"`
}

// DeleteRecord soft-deletes and returns the pre-delete record so the caller
// can pass it to undo_delete.
func (h *ToolHandlers) DeleteRecord(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRecordInput) (*mcp.CallToolResult, DeleteRecordOutput, error) {
	t, err := models.ParseObjectType(input.ObjectType)
	if err != nil {
		return nil, DeleteRecordOutput{}, err
	}
	if input.ID == "" {
		return nil, DeleteRecordOutput{}, fmt.Errorf("id is required")
	}

	previous, err := h.query.Get(ctx, t, input.ID)
	if err != nil {
		return nil, DeleteRecordOutput{}, err
	}
	res, err := h.query.SoftDelete(ctx, t, input.ID)
	if err != nil {
		return nil, DeleteRecordOutput{}, fmt.Errorf("failed to delete record: %w", err)
	}
	return nil, DeleteRecordOutput{
		Deleted:  resultToOutput(res),
		Previous: RecordOutput{ObjectType: string(t), ID: input.ID, Record: previous.Map()},
	}, nil
}

type UndoDeleteInput struct {
	ObjectType string                 `json:"object_type" jsonschema:"Object type of the record (required)"`
	Record     map[string]interface{} `json:"record" jsonschema:"The record as it was before deletion (the previous field of delete_record)"`
}

func (h *ToolHandlers) UndoDelete(ctx context.Context, _ *mcp.CallToolRequest, input UndoDeleteInput) (*mcp.CallToolResult, RecordOutput, error) {
	t, err := models.ParseObjectType(input.ObjectType)
	if err != nil {
		return nil, RecordOutput{}, err
	}
	if input.Record == nil {
		return nil, RecordOutput{}, fmt.Errorf("record is required")
	}
	record, err := models.RecordFromMap(input.Record)
	if err != nil {
		return nil, RecordOutput{}, fmt.Errorf("invalid record: %w", err)
	}

	res, err := h.query.UndoDelete(ctx, t, record)
	if err != nil {
		return nil, RecordOutput{}, fmt.Errorf("failed to undo delete: %w", err)
	}
	return nil, resultToOutput(res), nil
}

type RequestExtractionInput struct {
	ObjectType string `json:"object_type" jsonschema:"Object type to extract from the active page (required)"`
}

type RequestExtractionOutput struct {
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	ObjectType string        `json:"object_type,omitempty"`
	Updated    *RecordOutput `json:"updated,omitempty"`
}

func (h *ToolHandlers) RequestExtraction(ctx context.Context, _ *mcp.CallToolRequest, input RequestExtractionInput) (*mcp.CallToolResult, RequestExtractionOutput, error) {
	if h.coordinator == nil {
		return nil, RequestExtractionOutput{}, fmt.Errorf("extraction is not available in this mode")
	}
	t, err := models.ParseObjectType(input.ObjectType)
	if err != nil {
		return nil, RequestExtractionOutput{}, err
	}

	o := h.coordinator.RequestExtraction(ctx, t)
	out := RequestExtractionOutput{Status: string(o.Status), Error: o.Error, ObjectType: string(o.ObjectType)}
	if o.Updated != nil {
		rec := resultToOutput(*o.Updated)
		out.Updated = &rec
	}
	return nil, out, nil
}

type RecentMergesInput struct {
	ObjectType string `json:"object_type,omitempty" jsonschema:"Restrict to one object type"`
	ID         string `json:"id,omitempty" jsonschema:"Show the full history of one storage key instead"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of entries (default 50)"`
}

type MergeLogEntry struct {
	ObjectType      string `json:"object_type"`
	ID              string `json:"id"`
	Decision        string `json:"decision"`
	IncomingUpdated string `json:"incoming_updated,omitempty"`
	StoredUpdated   string `json:"stored_updated,omitempty"`
	MergedAt        string `json:"merged_at"`
}

type RecentMergesOutput struct {
	Entries []MergeLogEntry `json:"entries"`
}

func (h *ToolHandlers) RecentMerges(ctx context.Context, _ *mcp.CallToolRequest, input RecentMergesInput) (*mcp.CallToolResult, RecentMergesOutput, error) {
	if h.journal == nil {
		return nil, RecentMergesOutput{}, fmt.Errorf("merge journal is disabled")
	}

	var (
		entries []db.Entry
		err     error
	)
	if input.ID != "" {
		entries, err = h.journal.History(ctx, input.ID)
	} else {
		var t models.ObjectType
		if input.ObjectType != "" {
			if t, err = models.ParseObjectType(input.ObjectType); err != nil {
				return nil, RecentMergesOutput{}, err
			}
		}
		entries, err = h.journal.Recent(ctx, t, input.Limit)
	}
	if err != nil {
		return nil, RecentMergesOutput{}, err
	}

	out := RecentMergesOutput{Entries: make([]MergeLogEntry, len(entries))}
	for i, e := range entries {
		out.Entries[i] = MergeLogEntry{
			ObjectType:      string(e.ObjectType),
			ID:              e.StorageKey,
			Decision:        string(e.Decision),
			IncomingUpdated: e.IncomingUpdated,
			StoredUpdated:   e.StoredUpdated,
			MergedAt:        models.Timestamp(e.MergedAt),
		}
	}
	return nil, out, nil
}

type PingInput struct{}

type PingOutput struct {
	Type     string `json:"type"`
	Received bool   `json:"received"`
}

func (h *ToolHandlers) Ping(_ context.Context, _ *mcp.CallToolRequest, _ PingInput) (*mcp.CallToolResult, PingOutput, error) {
	return nil, PingOutput{Type: TypePong, Received: true}, nil
}
