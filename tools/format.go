package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/replace"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// FormatFileInfos lists found files grouped the way they are sorted: by extension, then path.
func FormatFileInfos(query string, files []*index.FileInfo) string {
	if len(files) == 0 {
		return fmt.Sprintf("No files found for %q.", query)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Found %d files for %q:\n", len(files), query))

	currentExt := "\x00"
	for _, f := range files {
		if f.Extension != currentExt {
			currentExt = f.Extension
			builder.WriteString(fmt.Sprintf("\n── %s (%s) ──\n", displayExtension(currentExt), f.Type()))
		}
		builder.WriteString(fmt.Sprintf("  %s\n", f.RelativePath))
	}

	return builder.String()
}

// FormatReplaceInfos lists recorded replacements with their occurrence counts.
func FormatReplaceInfos(infos []*replace.ReplaceInfo) string {
	if len(infos) == 0 {
		return "No replacements recorded."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%d files with replacements:\n\n", len(infos)))
	for _, ri := range infos {
		builder.WriteString(fmt.Sprintf("  %s  (%d × %q → %q)\n",
			ri.File.RelativePath, len(ri.Offsets), ri.OldValue, ri.NewValue))
	}
	return builder.String()
}

func displayExtension(ext string) string {
	if ext == "" {
		return "(no extension)"
	}
	return ext
}

// formatFileSize converts bytes to a human-readable string.
func formatFileSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	totalMinutes := totalSeconds / 60
	remainderSeconds := totalSeconds % 60
	if totalMinutes < 60 {
		return fmt.Sprintf("%dm%ds", totalMinutes, remainderSeconds)
	}
	hours := totalMinutes / 60
	remainderMinutes := totalMinutes % 60
	return fmt.Sprintf("%dh%dm", hours, remainderMinutes)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}
