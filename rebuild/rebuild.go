package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lexandro/assetref-mcp/changelog"
	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/search"
)

// Options wires a Rebuilder to its collaborators.
type Options struct {
	RootDir string
	// SearchRoot is the directory scanned; defaults to RootDir.
	SearchRoot  string
	Index       *index.ReferenceIndex
	Log         *changelog.Log
	Resolver    index.Resolver
	Invoker     search.Invoker
	Pattern     string // token regular expression
	MatchPrefix string
	// Extensions is the allow-list, each with a leading dot.
	Extensions []string
	Excludes   []string
	Logger     *slog.Logger
}

// Result summarizes one full rebuild.
type Result struct {
	Files    int
	Tokens   int
	Duration time.Duration
}

// Rebuilder re-derives the whole reference index from a repository scan.
type Rebuilder struct {
	opts Options
}

// New creates a Rebuilder.
func New(opts Options) *Rebuilder {
	if opts.SearchRoot == "" {
		opts.SearchRoot = opts.RootDir
	}
	if opts.Pattern == "" {
		opts.Pattern = index.DefaultTokenPattern
	}
	if opts.MatchPrefix == "" {
		opts.MatchPrefix = index.DefaultMatchPrefix
	}
	return &Rebuilder{opts: opts}
}

// Args returns the search arguments of a rebuild scan.
func (r *Rebuilder) Args() search.Args {
	includes := make([]string, 0, len(r.opts.Extensions))
	for _, ext := range r.opts.Extensions {
		includes = append(includes, "*"+ext)
	}

	excludes := append([]string(nil), r.opts.Excludes...)
	if path := r.opts.Index.Path(); path != "" {
		excludes = append(excludes, filepath.Base(path))
	}
	if r.opts.Log != nil {
		excludes = append(excludes, filepath.Base(r.opts.Log.Path()))
	}

	return search.Args{
		Pattern:       r.opts.Pattern,
		Root:          r.opts.SearchRoot,
		Heading:       true,
		CaseSensitive: true,
		OnlyMatching:  true,
		Includes:      includes,
		Excludes:      excludes,
	}
}

// Rebuild clears the index and rescans the repository without blocking.
// done is called exactly once. On failure the index is left empty; the
// caller must retry. Change log lines present when the scan starts are
// superseded by it; lines appended while it runs stay for the next drain.
func (r *Rebuilder) Rebuild(ctx context.Context, done func(Result, error)) {
	start := time.Now()

	var superseded changelog.Mark
	if r.opts.Log != nil {
		_, mark, err := r.opts.Log.Snapshot()
		if err != nil {
			done(Result{}, err)
			return
		}
		superseded = mark
	}
	r.opts.Index.Clear()

	search.InvokeAsync(ctx, r.opts.Invoker, r.Args(), func(lines []string, err error) {
		if err != nil {
			r.opts.Logger.Error("rebuild search failed", "error", err)
			done(Result{}, fmt.Errorf("scanning %s: %w", r.opts.SearchRoot, err))
			return
		}

		refs, err := search.ParseGrouped(lines, r.opts.MatchPrefix, r.keyOf)
		if err != nil {
			r.opts.Logger.Error("rebuild output rejected", "error", err)
			done(Result{}, err)
			return
		}

		result := Result{Files: len(refs)}
		for _, tokens := range refs {
			result.Tokens += len(tokens)
		}

		r.opts.Index.BulkReplace(refs)
		if err := r.opts.Index.Flush(); err != nil {
			done(result, err)
			return
		}
		if r.opts.Log != nil {
			if err := r.opts.Log.Discard(superseded); err != nil {
				done(result, err)
				return
			}
		}

		result.Duration = time.Since(start)
		r.opts.Logger.Info("reference index rebuilt",
			"files", result.Files,
			"tokens", result.Tokens,
			"duration", result.Duration,
		)
		done(result, nil)
	})
}

// RebuildAndWait runs Rebuild and blocks until it completes.
func (r *Rebuilder) RebuildAndWait(ctx context.Context) (Result, error) {
	type outcome struct {
		result Result
		err    error
	}
	ch := make(chan outcome, 1)
	r.Rebuild(ctx, func(res Result, err error) {
		ch <- outcome{res, err}
	})
	o := <-ch
	return o.result, o.err
}

// keyOf resolves a path header printed by the search tool to an identifier.
func (r *Rebuilder) keyOf(header string) (string, bool) {
	rel := header
	if filepath.IsAbs(header) {
		var err error
		rel, err = filepath.Rel(r.opts.RootDir, header)
		if err != nil {
			return "", false
		}
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", false
	}

	id := r.opts.Resolver.IdentifierForPath(rel)
	if id == "" {
		r.opts.Logger.Debug("dropping unresolved file", "path", rel)
		return "", false
	}
	return id, true
}
