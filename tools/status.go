package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lexandro/assetref-mcp/changelog"
	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/replace"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatusArgs defines the input parameters for the assetref_status tool (none required).
type StatusArgs struct{}

// IdentifierCounter reports how many identifiers the resolver knows.
type IdentifierCounter interface {
	Len() int
}

// StatusHandler holds the dependencies for the status tool.
type StatusHandler struct {
	Index     *index.ReferenceIndex
	Resolver  IdentifierCounter
	ChangeLog *changelog.Log
	Session   *replace.Session
	Searcher  string // name of the search backend in use
	StartTime time.Time
	RootDir   string
	Logger    *slog.Logger
}

// Handle processes an assetref_status request.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgs) (*mcp.CallToolResult, any, error) {
	var builder strings.Builder

	snapshot, generation := h.Index.Snapshot()
	tokenCount := 0
	for _, tokens := range snapshot {
		tokenCount += len(tokens)
	}

	pending, err := h.ChangeLog.Lines()
	if err != nil {
		h.Logger.Warn("assetref_status could not read change log", "error", err)
	}

	var indexSize int64
	if info, err := os.Stat(h.Index.Path()); err == nil {
		indexSize = info.Size()
	}

	uptime := time.Since(h.StartTime)
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h.Logger.Info("assetref_status",
		"files", len(snapshot),
		"tokens", tokenCount,
		"pending", len(pending),
		"uptime", uptime,
	)

	builder.WriteString("=== assetref-mcp Status ===\n\n")
	builder.WriteString(fmt.Sprintf("Root directory: %s\n", h.RootDir))
	builder.WriteString(fmt.Sprintf("Search backend: %s\n", h.Searcher))
	builder.WriteString(fmt.Sprintf("Uptime: %s\n", formatDuration(uptime)))
	builder.WriteString(fmt.Sprintf("Indexed files: %d\n", len(snapshot)))
	builder.WriteString(fmt.Sprintf("References: %d\n", tokenCount))
	builder.WriteString(fmt.Sprintf("Index generation: %d\n", generation))
	builder.WriteString(fmt.Sprintf("Known identifiers: %d\n", h.Resolver.Len()))
	builder.WriteString(fmt.Sprintf("Index file: %s (%s)\n", h.Index.Path(), formatFileSize(indexSize)))
	builder.WriteString(fmt.Sprintf("Pending changes: %d\n", len(pending)))
	builder.WriteString(fmt.Sprintf("Memory usage: %s (heap: %s)\n",
		formatFileSize(int64(memStats.Alloc)),
		formatFileSize(int64(memStats.HeapAlloc)),
	))

	if find := h.Session.Find(); find != "" {
		builder.WriteString(fmt.Sprintf("\nSession find string: %q (%d results)\n", find, len(h.Session.Results())))
		builder.WriteString(FormatReplaceInfos(h.Session.Replaced()))
		builder.WriteString("\n")
	}

	return textResult(builder.String()), nil, nil
}
