package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/changelog"
	"github.com/lexandro/assetref-mcp/ignore"
	"github.com/lexandro/assetref-mcp/watcher"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

func writeAsset(t *testing.T, root, rel, guid, content string) string {
	t.Helper()
	writeFile(t, root, rel+".meta", "fileFormatVersion: 2\nguid: "+guid+"\n")
	return writeFile(t, root, rel, content)
}

type recorderFixture struct {
	root     string
	rec      *recorder
	log      *changelog.Log
	resolver *assets.MetaResolver
}

func newRecorderFixture(t *testing.T) *recorderFixture {
	t.Helper()
	root := t.TempDir()
	writeAsset(t, root, "Assets/Hero.prefab", "G1", "fileID: 1, guid: G2\n")

	matcher := ignore.NewMatcher(ignore.MatcherOptions{RootDir: root})
	resolver := assets.NewMetaResolver(root, matcher)
	if _, err := resolver.Refresh(); err != nil {
		t.Fatal(err)
	}
	log := changelog.NewLog(filepath.Join(root, ".assetref", "changes.txt"))
	rec := newRecorder(root, "Assets", []string{".prefab", ".unity"}, log, resolver, matcher, testLogger())
	return &recorderFixture{root: root, rec: rec, log: log, resolver: resolver}
}

func (f *recorderFixture) abs(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func (f *recorderFixture) record(t *testing.T, events ...watcher.DebouncedEvent) []changelog.Entry {
	t.Helper()
	entries, err := f.rec.record(events)
	if err != nil {
		t.Fatalf("record() error: %v", err)
	}
	return entries
}

func Test_recorder_UnchangedSaveIsNotLoggedTwice(t *testing.T) {
	f := newRecorderFixture(t)
	write := watcher.DebouncedEvent{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpWrite}

	entries := f.record(t, write)
	if len(entries) != 1 || entries[0] != (changelog.Entry{Op: changelog.OpUpdate, Identifier: "G1", Path: "Assets/Hero.prefab"}) {
		t.Fatalf("unexpected entries: %v", entries)
	}

	if entries := f.record(t, write); len(entries) != 0 {
		t.Errorf("expected unchanged save to be skipped, got %v", entries)
	}

	writeFile(t, f.root, "Assets/Hero.prefab", "fileID: 1, guid: G3\n")
	if entries := f.record(t, write); len(entries) != 1 {
		t.Errorf("expected changed content to be logged, got %v", entries)
	}

	lines, err := f.log.Lines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d: %v", len(lines), lines)
	}
}

func Test_recorder_RemoveUsesKnownIdentifier(t *testing.T) {
	f := newRecorderFixture(t)
	os.Remove(f.abs("Assets/Hero.prefab"))

	entries := f.record(t, watcher.DebouncedEvent{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpRemove})

	if len(entries) != 1 || entries[0].Op != changelog.OpRemove || entries[0].Identifier != "G1" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func Test_recorder_WriteOfVanishedFileBecomesRemove(t *testing.T) {
	f := newRecorderFixture(t)
	os.Remove(f.abs("Assets/Hero.prefab"))

	entries := f.record(t, watcher.DebouncedEvent{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpWrite})

	if len(entries) != 1 || entries[0].Op != changelog.OpRemove {
		t.Errorf("expected a remove entry, got %v", entries)
	}
}

func Test_recorder_SkipsUntrackedPaths(t *testing.T) {
	f := newRecorderFixture(t)
	outside := writeAsset(t, f.root, "Packages/Lib.prefab", "G5", "x")
	text := writeFile(t, f.root, "Assets/readme.txt", "x")
	noMeta := writeFile(t, f.root, "Assets/Orphan.prefab", "x")

	entries := f.record(t,
		watcher.DebouncedEvent{Path: outside, Op: watcher.OpWrite},
		watcher.DebouncedEvent{Path: text, Op: watcher.OpWrite},
		watcher.DebouncedEvent{Path: noMeta, Op: watcher.OpCreate},
	)

	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
	if f.log.Exists() {
		t.Error("expected no change log to be written")
	}
}

func Test_recorder_LateSidecarIsRead(t *testing.T) {
	f := newRecorderFixture(t)
	abs := writeFile(t, f.root, "Assets/New.unity", "fileID: 7, guid: G1\n")
	writeFile(t, f.root, "Assets/New.unity.meta", "guid: G7\n")

	entries := f.record(t, watcher.DebouncedEvent{Path: abs, Op: watcher.OpCreate})

	if len(entries) != 1 || entries[0].Identifier != "G7" {
		t.Errorf("expected update for G7, got %v", entries)
	}
}

func Test_recorder_MetaIdentifierChange(t *testing.T) {
	f := newRecorderFixture(t)
	meta := writeFile(t, f.root, "Assets/Hero.prefab.meta", "guid: G9\n")

	entries := f.record(t, watcher.DebouncedEvent{Path: meta, Op: watcher.OpWrite})

	want := []changelog.Entry{
		{Op: changelog.OpRemove, Identifier: "G1", Path: "Assets/Hero.prefab"},
		{Op: changelog.OpUpdate, Identifier: "G9", Path: "Assets/Hero.prefab"},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %v, want %v", i, entries[i], want[i])
		}
	}
	if got := f.resolver.PathForIdentifier("G9"); got != "Assets/Hero.prefab" {
		t.Errorf("resolver not updated, G9 -> %q", got)
	}
}

func Test_recorder_RecordEditsSuppressesEcho(t *testing.T) {
	f := newRecorderFixture(t)
	writeFile(t, f.root, "Assets/Hero.prefab", "fileID: 1, guid: G4\n")

	entries, err := f.rec.recordEdits([]string{"Assets/Hero.prefab", "Assets/Unknown.prefab"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Identifier != "G1" {
		t.Fatalf("unexpected entries: %v", entries)
	}

	echo := f.record(t, watcher.DebouncedEvent{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpWrite})
	if len(echo) != 0 {
		t.Errorf("expected the write caused by the edit to be skipped, got %v", echo)
	}
}

func Test_recorder_IgnoreFileReloads(t *testing.T) {
	f := newRecorderFixture(t)
	gi := writeFile(t, f.root, ".gitignore", "Assets/Hero.prefab\n")

	if entries := f.record(t, watcher.DebouncedEvent{Path: gi, Op: watcher.OpWrite}); len(entries) != 0 {
		t.Fatalf("expected no entries for the ignore file, got %v", entries)
	}

	entries := f.record(t, watcher.DebouncedEvent{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpWrite})
	if len(entries) != 0 {
		t.Errorf("expected newly ignored file to be skipped, got %v", entries)
	}
}

func Test_recorder_RunConsumesBatchesUntilClosed(t *testing.T) {
	f := newRecorderFixture(t)
	events := make(chan []watcher.DebouncedEvent, 2)
	events <- []watcher.DebouncedEvent{{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpCreate}}
	events <- []watcher.DebouncedEvent{{Path: f.abs("Assets/Hero.prefab"), Op: watcher.OpRemove}}
	close(events)

	f.rec.run(events)

	lines, err := f.log.Lines()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"update,G1,Assets/Hero.prefab", "remove,G1,Assets/Hero.prefab"}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}
