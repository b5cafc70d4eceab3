package watcher

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type suffixIgnore string

func (s suffixIgnore) ShouldIgnoreDir(path string) bool { return filepath.Base(path) == "Library" }
func (s suffixIgnore) ShouldIgnore(path string) bool    { return strings.HasSuffix(path, string(s)) }

func Test_Watcher_ReportsAssetChanges(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Library"), 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(Options{
		RootDir:  root,
		Interval: 50 * time.Millisecond,
		Ignore:   suffixIgnore(".tmp"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	defer w.Close()
	go w.Start()

	if w.WatchedDirs() != 1 {
		t.Errorf("expected only the root to be watched, got %d", w.WatchedDirs())
	}

	prefab := filepath.Join(root, "a.prefab")
	if err := os.WriteFile(prefab, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-w.Events():
		if len(batch) != 1 || batch[0].Path != prefab {
			t.Errorf("expected one event for %s, got %v", prefab, batch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher batch")
	}
}

func Test_Watcher_ReportsFilesOfNewDirectory(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(Options{
		RootDir:  root,
		Interval: 50 * time.Millisecond,
		Ignore:   suffixIgnore(".tmp"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	defer w.Close()
	go w.Start()

	// Build the tree elsewhere and move it in, so its files predate the watch.
	staging := t.TempDir()
	imported := filepath.Join(staging, "Imported", "Sub")
	if err := os.MkdirAll(imported, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imported, "c.prefab"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(staging, "Imported"), filepath.Join(root, "Imported")); err != nil {
		t.Skipf("cannot move across directories here: %v", err)
	}

	want := filepath.Join(root, "Imported", "Sub", "c.prefab")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-w.Events():
			for _, e := range batch {
				if e.Path == want && e.Op == OpCreate {
					if w.WatchedDirs() < 3 {
						t.Errorf("expected the new directories to be watched, got %d", w.WatchedDirs())
					}
					return
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for the file of the new directory")
		}
	}
}
