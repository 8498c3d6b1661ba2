// ABOUTME: MCP resource handlers for exposing stored records
// ABOUTME: Provides read-only JSON views of each bucket and a summary via sfcrm:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

// ResourceScheme prefixes every resource URI.
const ResourceScheme = "sfcrm://"

type ResourceHandlers struct {
	engine *merge.Engine
}

func NewResourceHandlers(engine *merge.Engine) *ResourceHandlers {
	return &ResourceHandlers{engine: engine}
}

// Resources lists the URIs ReadResource answers.
func (h *ResourceHandlers) Resources() []*mcp.Resource {
	resources := []*mcp.Resource{{
		URI:         ResourceScheme + "summary",
		Name:        "summary",
		Description: "Record counts and last sync time per object type",
		MIMEType:    "application/json",
	}}
	for _, t := range models.ObjectTypes {
		key, _ := t.BucketKey()
		resources = append(resources, &mcp.Resource{
			URI:         ResourceScheme + key,
			Name:        key,
			Description: fmt.Sprintf("All stored %s records, soft-deleted included", t),
			MIMEType:    "application/json",
		})
	}
	return resources
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, ResourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", ResourceScheme)
	}
	path := strings.TrimPrefix(uri, ResourceScheme)

	root, err := h.engine.LoadRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	var v interface{}
	if path == "summary" {
		v = query.Summary(root)
	} else {
		t, err := models.ParseObjectType(path)
		if err != nil {
			return nil, fmt.Errorf("unknown resource: %s", path)
		}
		entries, err := query.Entries(root, t)
		if err != nil {
			return nil, err
		}
		v = entries
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
