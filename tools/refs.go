package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/replace"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RefsArgs defines the input parameters for the assetref_find_refs tool.
type RefsArgs struct {
	Guid   string `json:"guid,omitempty" jsonschema:"Identifier (guid) of the referenced asset"`
	FileID *int64 `json:"fileId,omitempty" jsonschema:"Optional sub-object fileID; restricts the query to references of that component"`
	Token  string `json:"token,omitempty" jsonschema:"Raw token or token fragment to look up instead of guid/fileId (e.g. 'fileID: 11500000, guid: abc')"`
}

// RefsHandler holds the dependencies for the find_refs tool.
type RefsHandler struct {
	Query   *index.QueryEngine
	Session *replace.Session
	Logger  *slog.Logger
}

// Handle processes an assetref_find_refs request. The found files become the
// session's result set, with the query token as its find string.
func (h *RefsHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RefsArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	token := args.Token
	switch {
	case token != "":
	case args.Guid == "":
		h.Logger.Warn("assetref_find_refs called without guid or token")
		return errorResult("Error: guid or token parameter is required"), nil, nil
	case args.FileID != nil:
		token = index.ComponentToken(*args.FileID, args.Guid)
	default:
		token = index.AssetToken(args.Guid)
	}

	files, err := h.Query.Find(token)
	if err != nil {
		h.Logger.Error("assetref_find_refs failed", "token", token, "error", err)
		return errorResult("Query error: %v", err), nil, nil
	}
	h.Session.UseResults(token, files)

	h.Logger.Info("assetref_find_refs",
		"token", token,
		"files", len(files),
		"elapsed", time.Since(start),
	)

	return textResult(FormatFileInfos(token, files)), nil, nil
}
