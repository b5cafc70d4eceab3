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

// ReplaceArgs defines the input parameters for the assetref_replace tool.
type ReplaceArgs struct {
	Replacement string `json:"replacement" jsonschema:"Text that replaces every occurrence of the current find string"`
	FilePath    string `json:"filePath,omitempty" jsonschema:"Relative path of one result file to replace in; all results when omitted"`
}

// ReplaceHandler holds the dependencies for the replace tool.
type ReplaceHandler struct {
	Session *replace.Session
	Logger  *slog.Logger
}

// Handle processes an assetref_replace request against the session's current results.
func (h *ReplaceHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReplaceArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	find := h.Session.Find()
	if find == "" {
		return errorResult("Error: no find string; run assetref_find_string or assetref_find_refs first"), nil, nil
	}
	h.Session.SetReplacement(args.Replacement)

	if args.FilePath != "" {
		return h.replaceOne(find, args)
	}

	done := make(chan replace.BulkResult, 1)
	h.Session.ReplaceAll(func(r replace.BulkResult) { done <- r })

	var result replace.BulkResult
	select {
	case result = <-done:
	case <-ctx.Done():
		// The fan-out keeps running; its outcome shows up in the session.
		return errorResult("Replace interrupted: %v", ctx.Err()), nil, nil
	}

	h.Logger.Info("assetref_replace",
		"find", find,
		"files", result.Files,
		"occurrences", result.Occurrences,
		"elapsed", time.Since(start),
	)

	output := fmt.Sprintf("Replaced %d occurrences of %q with %q in %d files.\n\n%s",
		result.Occurrences, find, args.Replacement, result.Files, FormatReplaceInfos(h.Session.Replaced()))
	if result.Err != nil {
		return errorResult("%s\nErrors:\n%v", output, result.Err), nil, nil
	}
	return textResult(output), nil, nil
}

func (h *ReplaceHandler) replaceOne(find string, args ReplaceArgs) (*mcp.CallToolResult, any, error) {
	rel := filepath.ToSlash(args.FilePath)
	for _, f := range h.Session.Results() {
		if f.RelativePath != rel {
			continue
		}
		ri, err := h.Session.ReplaceOne(f)
		if err != nil {
			h.Logger.Error("assetref_replace failed", "filePath", rel, "error", err)
			return errorResult("Replace error: %v", err), nil, nil
		}
		if ri == nil {
			return textResult(fmt.Sprintf("Nothing replaced in %s (no occurrence, or already replaced).", rel)), nil, nil
		}
		h.Logger.Info("assetref_replace", "find", find, "filePath", rel, "occurrences", len(ri.Offsets))
		return textResult(fmt.Sprintf("Replaced %d occurrences of %q with %q in %s.", len(ri.Offsets), find, args.Replacement, rel)), nil, nil
	}
	return errorResult("File not in current results: %s", rel), nil, nil
}
