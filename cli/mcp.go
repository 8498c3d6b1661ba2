// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server on stdio for desktop assistants
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/sfcrm/handlers"
)

// MCPCommand starts the MCP server on stdio. No page registers over MCP,
// so request_extraction is unavailable here; use serve for that.
func MCPCommand(ctx context.Context, app *App, version string) error {
	app.Logger.Info("starting MCP server", "storageKey", app.Engine.StorageKey())

	tools := handlers.NewToolHandlers(app.Engine, app.Query, nil, app.Journal)
	resources := handlers.NewResourceHandlers(app.Engine)
	server := handlers.NewMCPServer(version, tools, resources)

	return server.Run(ctx, &mcp.StdioTransport{})
}
