package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/assettype"
)

// Ignorer is the subset of the ignore matcher the native walk needs.
type Ignorer interface {
	ShouldIgnore(absolutePath string) bool
	ShouldIgnoreDir(absolutePath string) bool
	IsFileTooLarge(fileSize int64) bool
}

// Native runs searches in-process and prints results in ripgrep's output
// shape, so callers cannot tell it apart from Ripgrep. It is used when no
// rg binary is configured.
type Native struct {
	Ignorer Ignorer
}

// NewNative creates an in-process searcher. ignorer may be nil.
func NewNative(ignorer Ignorer) *Native {
	return &Native{Ignorer: ignorer}
}

// Invoke walks args.Root in lexical order. An invalid pattern is reported
// as ErrSubprocess, matching rg's exit status 2.
func (n *Native) Invoke(ctx context.Context, args Args) ([]string, error) {
	re, err := compilePattern(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubprocess, err)
	}

	var out []string
	walkErr := filepath.WalkDir(args.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != args.Root && n.Ignorer != nil && n.Ignorer.ShouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !n.selected(path, args) {
			return nil
		}

		data, err := assets.ReadFile(path)
		if err != nil || assettype.IsBinaryContent(data) {
			return nil
		}
		out = appendFileMatches(out, path, string(data), re, args)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: walking %s: %v", ErrSubprocess, args.Root, walkErr)
	}
	return out, nil
}

func (n *Native) selected(path string, args Args) bool {
	if n.Ignorer != nil {
		if n.Ignorer.ShouldIgnore(path) {
			return false
		}
		if info, err := os.Stat(path); err != nil || n.Ignorer.IsFileTooLarge(info.Size()) {
			return false
		}
	}

	rel, err := filepath.Rel(args.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if len(args.Includes) > 0 && !matchesAnyGlob(args.Includes, rel) {
		return false
	}
	return !matchesAnyGlob(args.Excludes, rel)
}

// matchesAnyGlob follows rg's --glob rule: a pattern without a slash matches the base name.
func matchesAnyGlob(patterns []string, rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		target := rel
		if !strings.Contains(pattern, "/") {
			target = base
		}
		if ok, err := doublestar.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

func compilePattern(args Args) (*regexp.Regexp, error) {
	pattern := args.Pattern
	if args.FixedStrings {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !args.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func appendFileMatches(out []string, path, content string, re *regexp.Regexp, args Args) []string {
	var group []string
	for lineIdx, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		var hits []string
		if args.OnlyMatching {
			for _, m := range re.FindAllString(line, -1) {
				if m != "" {
					hits = append(hits, m)
				}
			}
		} else if re.MatchString(line) {
			hits = []string{line}
		}
		if len(hits) == 0 {
			continue
		}
		if args.FilesOnly {
			return append(out, path)
		}
		for _, hit := range hits {
			if args.LineNumbers {
				hit = strconv.Itoa(lineIdx+1) + ":" + hit
			}
			if !args.Heading {
				hit = path + ":" + hit
			}
			group = append(group, hit)
		}
	}

	if len(group) == 0 {
		return out
	}
	if args.Heading {
		if len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, path)
	}
	return append(out, group...)
}
