package changelog

import (
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/runner"
)

// ErrDrainInProgress is reported when Drain is called while another drain runs.
var ErrDrainInProgress = errors.New("change log drain already in progress")

// Scanner extracts the reference tokens of a file's current content.
type Scanner interface {
	ScanFile(absolutePath string) ([]string, error)
}

// Ignorer filters paths that are never indexed.
type Ignorer interface {
	ShouldIgnore(absolutePath string) bool
}

// DrainResult summarizes one drain.
type DrainResult struct {
	Lines     int // raw lines read
	Entries   int // after deduplication and filtering
	Updated   int
	Removed   int
	Stale     int // update entries whose file is gone
	Discarded int // malformed, outside the asset root, or ignored
	Failed    int
}

// ProcessorOptions wires a Processor to its collaborators.
type ProcessorOptions struct {
	RootDir string
	// AssetRoot is the root-relative directory entries must fall under; empty or "." admits the whole root.
	AssetRoot string
	Log       *Log
	Index     *index.ReferenceIndex
	Resolver  index.Resolver
	Scanner   Scanner
	Ignorer   Ignorer // optional
	Runner    *runner.Runner
	Logger    *slog.Logger
}

// Processor applies the pending change log to a ReferenceIndex.
type Processor struct {
	opts     ProcessorOptions
	rootGlob string
	running  atomic.Bool
}

// NewProcessor creates a processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	assetRoot := strings.Trim(filepath.ToSlash(opts.AssetRoot), "/")
	rootGlob := ""
	if assetRoot != "" && assetRoot != "." {
		rootGlob = assetRoot + "/**"
	}
	return &Processor{opts: opts, rootGlob: rootGlob}
}

// Drain processes the log without blocking. done is called exactly once:
// after every entry has been applied, the consumed lines deleted and the
// index flushed. Failures of single entries are logged and counted, not
// returned.
func (p *Processor) Drain(done func(DrainResult, error)) {
	if !p.running.CompareAndSwap(false, true) {
		done(DrainResult{}, ErrDrainInProgress)
		return
	}

	lines, mark, err := p.opts.Log.Snapshot()
	if err != nil {
		p.running.Store(false)
		done(DrainResult{}, err)
		return
	}
	if len(lines) == 0 {
		p.running.Store(false)
		done(DrainResult{}, nil)
		return
	}

	result := DrainResult{Lines: len(lines)}
	groups := p.group(lines, &result)

	var updated, removed, stale atomic.Int64
	work := func(entries []Entry) error {
		for _, e := range entries {
			switch e.Op {
			case OpUpdate:
				abs := filepath.Join(p.opts.RootDir, filepath.FromSlash(e.Path))
				if !assets.Exists(abs) {
					stale.Add(1)
					p.opts.Logger.Debug("skipping stale update", "identifier", e.Identifier, "path", e.Path)
					continue
				}
				tokens, err := p.opts.Scanner.ScanFile(abs)
				if err != nil {
					return err
				}
				p.opts.Index.Update(e.Identifier, tokens)
				updated.Add(1)
			case OpRemove:
				p.opts.Index.Remove(e.Identifier)
				removed.Add(1)
			}
		}
		return nil
	}

	runner.Go(p.opts.Runner, groups, work, func(errs []error) {
		result.Updated = int(updated.Load())
		result.Removed = int(removed.Load())
		result.Stale = int(stale.Load())
		result.Failed = len(errs)

		err := errors.Join(p.opts.Log.Discard(mark), p.opts.Index.Flush())
		p.opts.Logger.Info("change log drained",
			"lines", result.Lines,
			"updated", result.Updated,
			"removed", result.Removed,
			"stale", result.Stale,
			"discarded", result.Discarded,
			"failed", result.Failed,
		)
		p.running.Store(false)
		done(result, err)
	})
}

// DrainAndWait runs Drain and blocks until it completes.
func (p *Processor) DrainAndWait() (DrainResult, error) {
	type outcome struct {
		result DrainResult
		err    error
	}
	ch := make(chan outcome, 1)
	p.Drain(func(r DrainResult, err error) {
		ch <- outcome{r, err}
	})
	o := <-ch
	return o.result, o.err
}

// group deduplicates raw lines keeping first-seen order, parses and filters
// them, and groups the surviving entries per identifier. Entries of one
// identifier stay in log order and run sequentially in one work item.
func (p *Processor) group(lines []string, result *DrainResult) [][]Entry {
	seen := make(map[string]struct{}, len(lines))
	byID := make(map[string]int)
	var groups [][]Entry

	for _, line := range lines {
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}

		entry, err := ParseEntry(line)
		if err != nil {
			result.Discarded++
			p.opts.Logger.Warn("skipping change log line", "error", err)
			continue
		}

		resolved := p.opts.Resolver.PathForIdentifier(entry.Identifier)
		if resolved == "" {
			resolved = filepath.ToSlash(entry.Path)
		}
		if !p.admits(resolved) {
			result.Discarded++
			p.opts.Logger.Debug("discarding change outside asset root", "identifier", entry.Identifier, "path", resolved)
			continue
		}
		entry.Path = resolved
		result.Entries++

		if i, ok := byID[entry.Identifier]; ok {
			groups[i] = append(groups[i], entry)
			continue
		}
		byID[entry.Identifier] = len(groups)
		groups = append(groups, []Entry{entry})
	}
	return groups
}

// admits reports whether a root-relative path is under the asset root and not ignored.
func (p *Processor) admits(relativePath string) bool {
	if relativePath == "" || path.IsAbs(relativePath) || strings.HasPrefix(path.Clean(relativePath), "..") {
		return false
	}
	if p.rootGlob != "" {
		ok, err := doublestar.Match(p.rootGlob, path.Clean(relativePath))
		if err != nil || !ok {
			return false
		}
	}
	if p.opts.Ignorer != nil {
		abs := filepath.Join(p.opts.RootDir, filepath.FromSlash(relativePath))
		if p.opts.Ignorer.ShouldIgnore(abs) {
			return false
		}
	}
	return true
}
