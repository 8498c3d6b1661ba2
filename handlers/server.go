// ABOUTME: Builds the MCP server with every tool and resource registered
// ABOUTME: Shared by the mcp subcommand and tests
package handlers

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer registers the tools and resources on a new server.
func NewMCPServer(version string, tools *ToolHandlers, resources *ResourceHandlers) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sfcrm",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "merge_record",
		Description: "Merge an observed CRM record into the store using freshness and completeness rules",
	}, tools.MergeRecord)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_records",
		Description: "List stored records of one object type",
	}, tools.ListRecords)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_record",
		Description: "Soft-delete a record; returns the previous record for undo_delete",
	}, tools.DeleteRecord)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "undo_delete",
		Description: "Restore a soft-deleted record from its pre-delete snapshot",
	}, tools.UndoDelete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "request_extraction",
		Description: "Ask the active page to extract a record and wait for the merged result",
	}, tools.RequestExtraction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_merges",
		Description: "Show recent merge decisions from the journal",
	}, tools.RecentMerges)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Check that the service is alive",
	}, tools.Ping)

	for _, r := range resources.Resources() {
		server.AddResource(r, resources.ReadResource)
	}

	return server
}
