package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexandro/assetref-mcp/changelog"
	"github.com/lexandro/assetref-mcp/rebuild"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RebuildArgs defines the input parameters for the assetref_rebuild tool.
type RebuildArgs struct{}

// RebuildFunc runs a full rebuild and waits for it. Provided by main.go.
type RebuildFunc func(ctx context.Context) (rebuild.Result, error)

// RebuildHandler holds the dependencies for the rebuild tool.
type RebuildHandler struct {
	DoRebuild RebuildFunc
	Logger    *slog.Logger
}

// Handle processes an assetref_rebuild request.
func (h *RebuildHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RebuildArgs) (*mcp.CallToolResult, any, error) {
	h.Logger.Info("assetref_rebuild started")

	result, err := h.DoRebuild(ctx)
	if err != nil {
		h.Logger.Error("assetref_rebuild failed", "error", err)
		return errorResult("Rebuild error: %v\nThe reference index is empty until a rebuild succeeds.", err), nil, nil
	}

	output := fmt.Sprintf("Rebuild complete: %d files, %d references in %s",
		result.Files, result.Tokens, result.Duration.Round(time.Millisecond))
	return textResult(output), nil, nil
}

// SyncArgs defines the input parameters for the assetref_sync tool.
type SyncArgs struct{}

// SyncFunc drains the pending change log and waits for it. Provided by main.go.
type SyncFunc func() (changelog.DrainResult, error)

// SyncHandler holds the dependencies for the sync tool.
type SyncHandler struct {
	DoSync SyncFunc
	Logger *slog.Logger
}

// Handle processes an assetref_sync request.
func (h *SyncHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SyncArgs) (*mcp.CallToolResult, any, error) {
	result, err := h.DoSync()
	if err != nil {
		h.Logger.Error("assetref_sync failed", "error", err)
		return errorResult("Sync error: %v", err), nil, nil
	}

	if result.Lines == 0 {
		return textResult("Change log is empty, index is up to date."), nil, nil
	}
	output := fmt.Sprintf("Synced %d change log lines: %d updated, %d removed, %d stale, %d discarded, %d failed.",
		result.Lines, result.Updated, result.Removed, result.Stale, result.Discarded, result.Failed)
	return textResult(output), nil, nil
}
