package replace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/runner"
	"github.com/lexandro/assetref-mcp/search"
)

// ReplaceInfo records one applied replacement. Offsets are byte offsets into
// the post-replacement content where NewValue starts, in ascending order.
type ReplaceInfo struct {
	File     *index.FileInfo
	OldValue string
	NewValue string
	Offsets  []int
}

// Notifier is told which root-relative paths a replace or revert rewrote.
// Bulk operations call it once per fan-out.
type Notifier func(paths []string)

// BulkResult summarizes ReplaceAll or RevertAll.
type BulkResult struct {
	Files       int // files rewritten
	Occurrences int
	Err         error // per-file failures, joined
}

// Options wires a Session to its collaborators.
type Options struct {
	RootDir string
	// SearchRoot is where FindString searches; defaults to RootDir.
	SearchRoot string
	Excludes   []string
	Invoker    search.Invoker
	Runner     *runner.Runner
	Notify     Notifier // optional
	Logger     *slog.Logger
}

// Session holds one find/replace workflow: the find string, its result set,
// the replacement text and the replacements applied so far. At most one
// ReplaceInfo exists per file.
type Session struct {
	opts Options

	mu          sync.Mutex
	find        string
	replacement string
	results     []*index.FileInfo
	replaced    []*ReplaceInfo
	busy        map[string]struct{} // absolute paths with an apply or revert running
}

// NewSession creates an empty session.
func NewSession(opts Options) *Session {
	if opts.SearchRoot == "" {
		opts.SearchRoot = opts.RootDir
	}
	return &Session{opts: opts, busy: make(map[string]struct{})}
}

// FindString searches for a literal and makes the matching files the
// session's result set. Previous results and replacements are dropped.
func (s *Session) FindString(ctx context.Context, text string) ([]*index.FileInfo, error) {
	if text == "" {
		return nil, nil
	}

	lines, err := s.opts.Invoker.Invoke(ctx, search.Args{
		Pattern:       text,
		Root:          s.opts.SearchRoot,
		FilesOnly:     true,
		FixedStrings:  true,
		CaseSensitive: true,
		Excludes:      s.opts.Excludes,
	})
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", text, err)
	}

	files := make([]*index.FileInfo, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		rel := line
		if filepath.IsAbs(line) {
			if rel, err = filepath.Rel(s.opts.RootDir, line); err != nil {
				continue
			}
		}
		files = append(files, index.NewFileInfo(s.opts.RootDir, rel, index.FromStringSearch))
	}
	index.SortFileInfos(files)

	s.UseResults(text, files)
	return s.Results(), nil
}

// UseResults replaces the session's find string and result set, for example
// with the output of a reference query. Previous replacements are dropped.
func (s *Session) UseResults(find string, files []*index.FileInfo) {
	files = append([]*index.FileInfo(nil), files...)
	index.SortFileInfos(files)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.find = find
	s.results = files
	s.replaced = nil
}

// SetReplacement sets the text ReplaceOne and ReplaceAll substitute.
func (s *Session) SetReplacement(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replacement = text
}

// Find returns the current find string.
func (s *Session) Find() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find
}

// Replacement returns the current replacement text.
func (s *Session) Replacement() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replacement
}

// Results returns a copy of the result set.
func (s *Session) Results() []*index.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*index.FileInfo(nil), s.results...)
}

// Replaced returns a copy of the recorded replacements.
func (s *Session) Replaced() []*ReplaceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ReplaceInfo(nil), s.replaced...)
}

// FindReplaceInfo returns the replacement recorded for a root-relative path, or nil.
func (s *Session) FindReplaceInfo(relativePath string) *ReplaceInfo {
	relativePath = filepath.ToSlash(relativePath)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ri := range s.replaced {
		if ri.File.RelativePath == relativePath {
			return ri
		}
	}
	return nil
}

// Apply replaces every occurrence of oldValue in file, left to right, and
// records where each newValue now starts. It returns nil without touching
// the file when oldValue is empty, nothing matches, or the file already has
// a replacement in this session.
func (s *Session) Apply(file *index.FileInfo, oldValue, newValue string) (*ReplaceInfo, error) {
	if oldValue == "" {
		return nil, nil
	}
	if !s.reserve(file, true) {
		return nil, nil
	}
	defer s.release(file)

	data, err := assets.ReadFile(file.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file.RelativePath, err)
	}

	content, offsets := replaceOccurrences(string(data), oldValue, newValue)
	if len(offsets) == 0 {
		return nil, nil
	}

	if err := assets.WriteFile(file.AbsolutePath, []byte(content)); err != nil {
		return nil, fmt.Errorf("writing %s: %w", file.RelativePath, err)
	}

	ri := &ReplaceInfo{File: file, OldValue: oldValue, NewValue: newValue, Offsets: offsets}
	s.mu.Lock()
	s.replaced = append(s.replaced, ri)
	s.mu.Unlock()

	s.opts.Logger.Debug("replaced", "path", file.RelativePath, "occurrences", len(offsets))
	return ri, nil
}

// replaceOccurrences splices newValue over each ordinal occurrence of
// oldValue. The cursor resumes after the inserted text, so replacements
// never rescan their own output.
func replaceOccurrences(content, oldValue, newValue string) (string, []int) {
	var (
		b       strings.Builder
		offsets []int
		cursor  int
	)
	for {
		i := strings.Index(content[cursor:], oldValue)
		if i < 0 {
			break
		}
		b.WriteString(content[cursor : cursor+i])
		offsets = append(offsets, b.Len())
		b.WriteString(newValue)
		cursor += i + len(oldValue)
	}
	if len(offsets) == 0 {
		return content, nil
	}
	b.WriteString(content[cursor:])
	return b.String(), offsets
}

// Revert restores oldValue at every recorded offset whose text still equals
// newValue. Offsets that no longer match are reported as *IntegrityError and
// skipped; the others are still reverted and written. A fully reverted
// replacement leaves the session; a partial one stays with only the failed
// offsets, adjusted to the reverted content.
func (s *Session) Revert(ri *ReplaceInfo) error {
	if !s.recorded(ri) {
		return ErrNotRecorded
	}
	if !s.reserve(ri.File, false) {
		return fmt.Errorf("%w: %s", ErrBusy, ri.File.RelativePath)
	}
	defer s.release(ri.File)

	data, err := assets.ReadFile(ri.File.AbsolutePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", ri.File.RelativePath, err)
	}

	content, failed, errs := revertOccurrences(string(data), ri)

	if len(failed) < len(ri.Offsets) {
		if err := assets.WriteFile(ri.File.AbsolutePath, []byte(content)); err != nil {
			return fmt.Errorf("writing %s: %w", ri.File.RelativePath, err)
		}
	}

	s.mu.Lock()
	if len(failed) == 0 {
		s.removeLocked(ri)
	} else {
		ri.Offsets = failed
	}
	s.mu.Unlock()

	if len(errs) > 0 {
		s.opts.Logger.Warn("revert left changed text in place", "path", ri.File.RelativePath, "failed", len(errs))
	}
	return errors.Join(errs...)
}

// revertOccurrences walks the offsets from last to first so every offset
// still addresses the content it was recorded against. It returns the new
// content and the failed offsets rebased onto it.
func revertOccurrences(content string, ri *ReplaceInfo) (string, []int, []error) {
	var (
		errs     []error
		failedAt []int
	)
	reverted := make([]bool, len(ri.Offsets))

	for i := len(ri.Offsets) - 1; i >= 0; i-- {
		off := ri.Offsets[i]
		end := off + len(ri.NewValue)
		if off < 0 || end > len(content) || content[off:end] != ri.NewValue {
			found := ""
			if off >= 0 && off < len(content) {
				found = content[off:min(end, len(content))]
			}
			errs = append(errs, &IntegrityError{Path: ri.File.RelativePath, Offset: off, Expected: ri.NewValue, Found: found})
			failedAt = append(failedAt, i)
			continue
		}
		content = content[:off] + ri.OldValue + content[end:]
		reverted[i] = true
	}

	delta := len(ri.OldValue) - len(ri.NewValue)
	failed := make([]int, 0, len(failedAt))
	for j := len(failedAt) - 1; j >= 0; j-- {
		i := failedAt[j]
		shift := 0
		for k := 0; k < i; k++ {
			if reverted[k] {
				shift += delta
			}
		}
		failed = append(failed, ri.Offsets[i]+shift)
	}
	// errs were collected last to first; report them in document order.
	for l, r := 0, len(errs)-1; l < r; l, r = l+1, r-1 {
		errs[l], errs[r] = errs[r], errs[l]
	}
	return content, failed, errs
}

// ReplaceOne applies the session's find and replacement strings to one file
// and notifies once.
func (s *Session) ReplaceOne(file *index.FileInfo) (*ReplaceInfo, error) {
	ri, err := s.Apply(file, s.Find(), s.Replacement())
	if ri != nil {
		s.notify([]string{file.RelativePath})
	}
	return ri, err
}

// RevertOne reverts one replacement and notifies once.
func (s *Session) RevertOne(ri *ReplaceInfo) error {
	err := s.Revert(ri)
	if !errors.Is(err, ErrNotRecorded) && !errors.Is(err, ErrBusy) {
		s.notify([]string{ri.File.RelativePath})
	}
	return err
}

// ReplaceAll drops previous replacements and applies the session's find and
// replacement strings to every file of the result set in parallel. The
// notifier and then done run once, after every file has finished.
func (s *Session) ReplaceAll(done func(BulkResult)) {
	s.mu.Lock()
	s.replaced = nil
	find, replacement := s.find, s.replacement
	files := append([]*index.FileInfo(nil), s.results...)
	s.mu.Unlock()

	var (
		mu      sync.Mutex
		changed []string
		total   int
	)
	work := func(file *index.FileInfo) error {
		ri, err := s.Apply(file, find, replacement)
		if err != nil {
			return err
		}
		if ri != nil {
			mu.Lock()
			changed = append(changed, file.RelativePath)
			total += len(ri.Offsets)
			mu.Unlock()
		}
		return nil
	}

	runner.Go(s.opts.Runner, files, work, func(errs []error) {
		s.finish(changed, total, errs, done)
	})
}

// RevertAll reverts every recorded replacement in parallel. The notifier
// and then done run once, after every file has finished.
func (s *Session) RevertAll(done func(BulkResult)) {
	infos := s.Replaced()

	var (
		mu      sync.Mutex
		changed []string
		total   int
	)
	work := func(ri *ReplaceInfo) error {
		s.mu.Lock()
		before := len(ri.Offsets)
		s.mu.Unlock()

		err := s.Revert(ri)
		if errors.Is(err, ErrNotRecorded) || errors.Is(err, ErrBusy) {
			return err
		}
		s.mu.Lock()
		after := 0
		if s.containsLocked(ri) {
			after = len(ri.Offsets)
		}
		s.mu.Unlock()
		if after < before {
			mu.Lock()
			changed = append(changed, ri.File.RelativePath)
			total += before - after
			mu.Unlock()
		}
		return err
	}

	runner.Go(s.opts.Runner, infos, work, func(errs []error) {
		s.finish(changed, total, errs, done)
	})
}

func (s *Session) finish(changed []string, occurrences int, errs []error, done func(BulkResult)) {
	if len(changed) > 0 {
		s.notify(changed)
	}
	if done != nil {
		done(BulkResult{Files: len(changed), Occurrences: occurrences, Err: errors.Join(errs...)})
	}
}

func (s *Session) notify(paths []string) {
	if s.opts.Notify != nil {
		s.opts.Notify(paths)
	}
}

// reserve claims a file for one apply or revert. It fails when another call
// holds the file, or, for an apply, when the file already has a replacement.
func (s *Session) reserve(file *index.FileInfo, apply bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.busy[file.AbsolutePath]; held {
		return false
	}
	if apply {
		for _, r := range s.replaced {
			if r.File.AbsolutePath == file.AbsolutePath {
				return false
			}
		}
	}
	s.busy[file.AbsolutePath] = struct{}{}
	return true
}

func (s *Session) release(file *index.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, file.AbsolutePath)
}

func (s *Session) recorded(ri *ReplaceInfo) bool {
	if ri == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(ri)
}

func (s *Session) containsLocked(ri *ReplaceInfo) bool {
	for _, r := range s.replaced {
		if r == ri {
			return true
		}
	}
	return false
}

func (s *Session) removeLocked(ri *ReplaceInfo) {
	for i, r := range s.replaced {
		if r == ri {
			s.replaced = append(s.replaced[:i], s.replaced[i+1:]...)
			return
		}
	}
}
