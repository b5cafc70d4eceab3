package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/changelog"
	"github.com/lexandro/assetref-mcp/ignore"
	"github.com/lexandro/assetref-mcp/watcher"
)

// recorder turns debounced filesystem events into change-log entries.
// It keeps an xxhash fingerprint per file so saves that leave the content
// unchanged are not logged again.
type recorder struct {
	rootDir    string
	assetRoot  string // root-relative, forward slashes, no trailing slash
	log        *changelog.Log
	resolver   *assets.MetaResolver
	ignorer    *ignore.Matcher
	extensions map[string]bool
	logger     *slog.Logger

	mu           sync.Mutex
	fingerprints map[string]uint64 // root-relative path -> content hash
}

func newRecorder(
	rootDir string,
	assetRoot string,
	extensions []string,
	log *changelog.Log,
	resolver *assets.MetaResolver,
	ignorer *ignore.Matcher,
	logger *slog.Logger,
) *recorder {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	assetRoot = strings.Trim(filepath.ToSlash(assetRoot), "/")
	if assetRoot == "." {
		assetRoot = ""
	}
	return &recorder{
		rootDir:      rootDir,
		assetRoot:    assetRoot,
		log:          log,
		resolver:     resolver,
		ignorer:      ignorer,
		extensions:   allowed,
		logger:       logger,
		fingerprints: make(map[string]uint64),
	}
}

// run records every batch the watcher emits until its channel closes.
func (r *recorder) run(events <-chan []watcher.DebouncedEvent) {
	for batch := range events {
		if _, err := r.record(batch); err != nil {
			r.logger.Warn("recording changes failed", "events", len(batch), "error", err)
		}
	}
}

// record appends the entries derived from one batch and returns them.
func (r *recorder) record(batch []watcher.DebouncedEvent) ([]changelog.Entry, error) {
	var entries []changelog.Entry
	for _, event := range batch {
		baseName := filepath.Base(event.Path)
		if ignore.IsIgnoreFile(baseName) {
			r.ignorer.Reload()
			r.logger.Info("reloaded ignore rules", "trigger", baseName)
			continue
		}

		if assets.IsMetaFile(event.Path) {
			entries = append(entries, r.metaChanged(event.Path)...)
			continue
		}

		rel, ok := r.admit(event.Path)
		if !ok {
			continue
		}

		if event.Op.Gone() {
			if entry, ok := r.gone(rel); ok {
				entries = append(entries, entry)
			}
			continue
		}
		if entry, ok := r.changed(event.Path, rel); ok {
			entries = append(entries, entry)
		}
	}

	if len(entries) == 0 {
		return nil, nil
	}
	if err := r.log.Append(entries...); err != nil {
		return nil, err
	}
	r.logger.Debug("recorded changes", "entries", len(entries))
	return entries, nil
}

// admit returns the root-relative path of a tracked asset file.
func (r *recorder) admit(absolutePath string) (string, bool) {
	if !r.extensions[strings.ToLower(filepath.Ext(absolutePath))] {
		return "", false
	}
	rel, err := filepath.Rel(r.rootDir, absolutePath)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", false
	}
	if r.assetRoot != "" && !strings.HasPrefix(rel, r.assetRoot+"/") {
		return "", false
	}
	if r.ignorer.ShouldIgnore(absolutePath) {
		return "", false
	}
	return rel, true
}

func (r *recorder) gone(rel string) (changelog.Entry, bool) {
	r.mu.Lock()
	delete(r.fingerprints, rel)
	r.mu.Unlock()

	id := r.resolver.IdentifierForPath(rel)
	if id == "" {
		r.logger.Debug("removed file has no identifier", "path", rel)
		return changelog.Entry{}, false
	}
	return changelog.Entry{Op: changelog.OpRemove, Identifier: id, Path: rel}, true
}

func (r *recorder) changed(absolutePath, rel string) (changelog.Entry, bool) {
	data, err := assets.ReadFile(absolutePath)
	if err != nil {
		if os.IsNotExist(err) {
			return r.gone(rel)
		}
		r.logger.Debug("skipped unreadable file", "path", rel, "error", err)
		return changelog.Entry{}, false
	}

	sum := xxhash.Sum64(data)
	r.mu.Lock()
	previous, seen := r.fingerprints[rel]
	r.fingerprints[rel] = sum
	r.mu.Unlock()
	if seen && previous == sum {
		return changelog.Entry{}, false
	}

	id := r.resolver.IdentifierForPath(rel)
	if id == "" {
		// The .meta sidecar may land in a later batch than the asset.
		r.resolver.ObserveMeta(absolutePath + assets.MetaExtension)
		id = r.resolver.IdentifierForPath(rel)
	}
	if id == "" {
		r.logger.Debug("changed file has no identifier", "path", rel)
		r.mu.Lock()
		delete(r.fingerprints, rel)
		r.mu.Unlock()
		return changelog.Entry{}, false
	}
	return changelog.Entry{Op: changelog.OpUpdate, Identifier: id, Path: rel}, true
}

// metaChanged re-reads a sidecar. When the identifier of its asset changed
// the old identifier is removed and the asset is logged under the new one.
func (r *recorder) metaChanged(metaPath string) []changelog.Entry {
	assetPath := strings.TrimSuffix(metaPath, assets.MetaExtension)
	rel, ok := r.admit(assetPath)
	if !ok {
		r.resolver.ObserveMeta(metaPath)
		return nil
	}

	before := r.resolver.IdentifierForPath(rel)
	r.resolver.ObserveMeta(metaPath)
	after := r.resolver.IdentifierForPath(rel)
	if before == after {
		return nil
	}

	var entries []changelog.Entry
	if before != "" {
		entries = append(entries, changelog.Entry{Op: changelog.OpRemove, Identifier: before, Path: rel})
	}
	if after != "" && assets.Exists(assetPath) {
		entries = append(entries, changelog.Entry{Op: changelog.OpUpdate, Identifier: after, Path: rel})
	}
	return entries
}

// recordEdits logs an update for every root-relative path the replace
// engine rewrote. The new fingerprints are stored first, so the watcher
// events caused by those writes are skipped.
func (r *recorder) recordEdits(paths []string) ([]changelog.Entry, error) {
	var entries []changelog.Entry
	for _, rel := range paths {
		abs := filepath.Join(r.rootDir, filepath.FromSlash(rel))
		if data, err := assets.ReadFile(abs); err == nil {
			r.mu.Lock()
			r.fingerprints[rel] = xxhash.Sum64(data)
			r.mu.Unlock()
		}
		id := r.resolver.IdentifierForPath(rel)
		if id == "" {
			r.logger.Debug("edited file has no identifier", "path", rel)
			continue
		}
		entries = append(entries, changelog.Entry{Op: changelog.OpUpdate, Identifier: id, Path: rel})
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := r.log.Append(entries...); err != nil {
		return nil, err
	}
	return entries, nil
}
