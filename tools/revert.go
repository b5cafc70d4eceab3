package tools

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lexandro/assetref-mcp/replace"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RevertArgs defines the input parameters for the assetref_revert tool.
type RevertArgs struct {
	FilePath string `json:"filePath,omitempty" jsonschema:"Relative path of one replaced file to revert; all replacements when omitted"`
}

// RevertHandler holds the dependencies for the revert tool.
type RevertHandler struct {
	Session *replace.Session
	Logger  *slog.Logger
}

// Handle processes an assetref_revert request. Replacements whose text was
// changed by something else stay recorded and are reported.
func (h *RevertHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RevertArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if args.FilePath != "" {
		rel := filepath.ToSlash(args.FilePath)
		ri := h.Session.FindReplaceInfo(rel)
		if ri == nil {
			return errorResult("No replacement recorded for %s", rel), nil, nil
		}
		if err := h.Session.RevertOne(ri); err != nil {
			h.Logger.Warn("assetref_revert incomplete", "filePath", rel, "error", err)
			return errorResult("Revert incomplete for %s:\n%v", rel, err), nil, nil
		}
		h.Logger.Info("assetref_revert", "filePath", rel)
		return textResult(fmt.Sprintf("Reverted %s.", rel)), nil, nil
	}

	done := make(chan replace.BulkResult, 1)
	h.Session.RevertAll(func(r replace.BulkResult) { done <- r })

	var result replace.BulkResult
	select {
	case result = <-done:
	case <-ctx.Done():
		return errorResult("Revert interrupted: %v", ctx.Err()), nil, nil
	}

	h.Logger.Info("assetref_revert",
		"files", result.Files,
		"occurrences", result.Occurrences,
		"elapsed", time.Since(start),
	)

	output := fmt.Sprintf("Reverted %d occurrences in %d files.", result.Occurrences, result.Files)
	if result.Err != nil {
		return errorResult("%s\nStill recorded:\n%s\nErrors:\n%v", output, FormatReplaceInfos(h.Session.Replaced()), result.Err), nil, nil
	}
	return textResult(output), nil, nil
}
