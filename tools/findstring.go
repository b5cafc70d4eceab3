package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexandro/assetref-mcp/replace"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// FindStringArgs defines the input parameters for the assetref_find_string tool.
type FindStringArgs struct {
	Text string `json:"text" jsonschema:"Literal text to find, matched case-sensitively"`
}

// FindStringHandler holds the dependencies for the find_string tool.
type FindStringHandler struct {
	Session *replace.Session
	Logger  *slog.Logger
}

// Handle processes an assetref_find_string request.
func (h *FindStringHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args FindStringArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if args.Text == "" {
		h.Logger.Warn("assetref_find_string called with empty text")
		return errorResult("Error: text parameter is required"), nil, nil
	}

	files, err := h.Session.FindString(ctx, args.Text)
	if err != nil {
		h.Logger.Error("assetref_find_string failed", "text", args.Text, "error", err)
		return errorResult("Search error: %v", err), nil, nil
	}

	h.Logger.Info("assetref_find_string",
		"text", args.Text,
		"files", len(files),
		"elapsed", time.Since(start),
	)

	return textResult(FormatFileInfos(args.Text, files)), nil, nil
}
