package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the quiet period before a batch of events is emitted.
const DefaultInterval = 200 * time.Millisecond

// IgnoreChecker decides which paths the watcher reports.
type IgnoreChecker interface {
	ShouldIgnoreDir(absolutePath string) bool
	ShouldIgnore(absolutePath string) bool
}

// Options configures a Watcher.
type Options struct {
	// RootDir is watched recursively; usually the asset root.
	RootDir  string
	Interval time.Duration
	Ignore   IgnoreChecker
	Logger   *slog.Logger
}

// Watcher watches a directory tree and emits debounced change batches.
type Watcher struct {
	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	ignore      IgnoreChecker
	rootDir     string
	logger      *slog.Logger
	watchedDirs atomic.Int64
}

// NewWatcher registers every non-ignored directory under opts.RootDir.
func NewWatcher(opts Options) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		debouncer: NewDebouncer(opts.Interval),
		ignore:    opts.Ignore,
		rootDir:   opts.RootDir,
		logger:    opts.Logger,
	}

	err = filepath.WalkDir(opts.RootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != opts.RootDir && w.ignore.ShouldIgnoreDir(path) {
			return filepath.SkipDir
		}
		w.watch(path)
		return nil
	})
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w.logger.Debug("watching asset tree", "root", opts.RootDir, "directories", w.watchedDirs.Load())
	return w, nil
}

// Events returns the channel of debounced batches.
func (w *Watcher) Events() <-chan []DebouncedEvent {
	return w.debouncer.Output()
}

// WatchedDirs returns the number of directories registered.
func (w *Watcher) WatchedDirs() int {
	return int(w.watchedDirs.Load())
}

// Start forwards file system events to the debouncer until Close is called.
// Call it in its own goroutine.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.ignore.ShouldIgnoreDir(path) {
				w.addTree(path)
			}
			return
		}
	}

	if w.ignore.ShouldIgnore(path) {
		return
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Remove):
		op = OpRemove
	case event.Has(fsnotify.Rename):
		op = OpRename
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpWrite
	default:
		return
	}

	w.debouncer.Add(path, op)
}

// addTree watches a directory that appeared after startup. Files already
// inside it were written before the watch existed, so they are reported as
// created.
func (w *Watcher) addTree(dir string) {
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.ignore.ShouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			w.watch(path)
			return nil
		}
		if !w.ignore.ShouldIgnore(path) {
			w.debouncer.Add(path, OpCreate)
		}
		return nil
	})
}

func (w *Watcher) watch(dir string) {
	if err := w.fsWatcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch directory", "path", dir, "error", err)
		return
	}
	w.watchedDirs.Add(1)
}

// Close stops watching and drops any pending batch.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
