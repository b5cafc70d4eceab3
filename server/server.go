package server

import (
	"github.com/lexandro/assetref-mcp/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handlers groups the tool handlers the server registers.
type Handlers struct {
	Refs       *tools.RefsHandler
	FindString *tools.FindStringHandler
	Replace    *tools.ReplaceHandler
	Revert     *tools.RevertHandler
	Rebuild    *tools.RebuildHandler
	Sync       *tools.SyncHandler
	Status     *tools.StatusHandler
}

// Setup creates and configures the MCP server with all tool registrations.
func Setup(version string, h Handlers) *mcp.Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "assetref-mcp",
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: `This server keeps a reference index over the project's text-serialized asset files (prefabs, scenes, materials, ...). It answers "which files reference this asset" without scanning the project, and performs literal find/replace across many assets with exact, verifiable revert.

Typical workflows:
- Who uses an asset: assetref_find_refs with its guid (add fileId to target one component).
- Swap a reference: assetref_find_refs, then assetref_replace with the new "guid: ..." token. assetref_revert undoes it.
- Rename a string everywhere: assetref_find_string, then assetref_replace.
- The index follows file changes automatically; assetref_sync forces it, assetref_rebuild starts over.`,
		},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "assetref_find_refs",
		Description: `Find every asset file that references an asset, using the reference index.

Modes:
  - guid only: files referencing any part of the asset ("guid: <guid>")
  - guid + fileId: files referencing that specific sub-object ("fileID: <n>, guid: <guid>")
  - token: any token or token fragment

Results are sorted by extension, then path, and become the current find/replace result set.`,
	}, h.Refs.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetref_find_string",
		Description: `Find asset files containing a literal string (case-sensitive). Results become the current find/replace result set.`,
	}, h.FindString.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "assetref_replace",
		Description: `Replace the current find string with a new value in all result files, or in one file with filePath.

Every replaced position is recorded so assetref_revert can undo the edit exactly. A file is replaced at most once per result set.`,
	}, h.Replace.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetref_revert",
		Description: `Revert recorded replacements, all of them or one file with filePath. Positions whose text was changed by something else are left alone and reported; they stay recorded so the revert can be retried.`,
	}, h.Revert.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetref_rebuild",
		Description: "Rebuild the reference index from scratch by scanning every asset file. Supersedes pending changes.",
	}, h.Rebuild.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetref_sync",
		Description: "Apply pending file changes to the reference index now instead of waiting for the next periodic sync.",
	}, h.Sync.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "assetref_status",
		Description: "Show index status: indexed files, references, pending changes, search backend, session state and uptime.",
	}, h.Status.Handle)

	return mcpServer
}
