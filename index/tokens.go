package index

import (
	"fmt"
	"regexp"

	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/assettype"
)

// DefaultTokenPattern matches the "fileID: <n>, guid: <id>" reference tokens
// embedded in text-serialized assets.
const DefaultTokenPattern = `fileID: -?\d*, guid: [a-zA-Z0-9]*`

// DefaultMatchPrefix starts every token, and therefore every match line of a heading-mode search.
const DefaultMatchPrefix = "fileID:"

// TokenScanner extracts reference tokens from file content.
type TokenScanner struct {
	pattern *regexp.Regexp
}

// NewTokenScanner compiles pattern; an empty pattern uses DefaultTokenPattern.
func NewTokenScanner(pattern string) (*TokenScanner, error) {
	if pattern == "" {
		pattern = DefaultTokenPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling token pattern %q: %w", pattern, err)
	}
	return &TokenScanner{pattern: re}, nil
}

// Pattern returns the source of the token regular expression.
func (s *TokenScanner) Pattern() string {
	return s.pattern.String()
}

// Scan returns every token in content in document order, duplicates included.
func (s *TokenScanner) Scan(content string) []string {
	matches := s.pattern.FindAllString(content, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if m != "" {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

// ScanFile reads a file and scans its current content. Binary files yield no tokens.
func (s *TokenScanner) ScanFile(absolutePath string) ([]string, error) {
	data, err := assets.ReadFile(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", absolutePath, err)
	}
	if assettype.IsBinaryContent(data) {
		return []string{}, nil
	}
	return s.Scan(string(data)), nil
}
