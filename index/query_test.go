package index

import (
	"io"
	"log/slog"
	"testing"

	"github.com/lexandro/assetref-mcp/assettype"
)

type mapResolver map[string]string

func (m mapResolver) PathForIdentifier(id string) string { return m[id] }

func (m mapResolver) IdentifierForPath(rel string) string {
	for id, path := range m {
		if path == rel {
			return id
		}
	}
	return ""
}

func newTestEngine(t *testing.T, refs *ReferenceIndex, resolver Resolver) *QueryEngine {
	t.Helper()
	q := NewQueryEngine(refs, resolver, "/project", slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { q.Close() })
	return q
}

func Test_QueryEngine_AssetAndComponentModes(t *testing.T) {
	refs := NewReferenceIndex("")
	refs.Update("G1", []string{"fileID: 1, guid: G2"})
	q := newTestEngine(t, refs, mapResolver{"G1": "Assets/Hero.prefab"})

	found, err := q.FindAsset("G2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0].RelativePath != "Assets/Hero.prefab" {
		t.Fatalf("expected G1's file, got %v", found)
	}
	if found[0].From != FromReference {
		t.Errorf("expected reference origin, got %s", found[0].From)
	}

	none, err := q.FindComponent(9, "G2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no results for fileID 9, got %d", len(none))
	}

	exact, _ := q.FindComponent(1, "G2")
	if len(exact) != 1 {
		t.Errorf("expected one result for fileID 1, got %d", len(exact))
	}
}

func Test_QueryEngine_GuidPrefixNotConfusedWithLongerGuid(t *testing.T) {
	refs := NewReferenceIndex("")
	refs.Update("A", []string{"fileID: 1, guid: G2abc"})
	refs.Update("B", []string{"fileID: 1, guid: G2"})
	q := newTestEngine(t, refs, mapResolver{"A": "a.prefab", "B": "b.prefab"})

	// "guid: G2" is a substring of both tokens, so both match.
	found, _ := q.FindAsset("G2")
	if len(found) != 2 {
		t.Errorf("expected 2 results, got %d", len(found))
	}

	found, _ = q.FindComponent(1, "G2abc")
	if len(found) != 1 || found[0].RelativePath != "a.prefab" {
		t.Errorf("expected only a.prefab, got %v", found)
	}
}

func Test_QueryEngine_Exclusions(t *testing.T) {
	refs := NewReferenceIndex("")
	token := "fileID: 1, guid: T"
	refs.Update("unresolved", []string{token})
	refs.Update("self", []string{token})
	refs.Update("trashed", []string{token})
	refs.Update("ok", []string{token})
	q := newTestEngine(t, refs, mapResolver{
		"self":    "self",
		"trashed": "Assets/__DELETED_GUID_Trash/old.prefab",
		"ok":      "Assets/ok.prefab",
	})

	found, err := q.FindAsset("T")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0].RelativePath != "Assets/ok.prefab" {
		t.Errorf("expected only the resolvable referrer, got %v", found)
	}
}

func Test_QueryEngine_SortedByExtensionThenPath(t *testing.T) {
	refs := NewReferenceIndex("")
	token := "fileID: 1, guid: T"
	for _, id := range []string{"1", "2", "3", "4"} {
		refs.Update(id, []string{token})
	}
	q := newTestEngine(t, refs, mapResolver{
		"1": "z/Scene.unity",
		"2": "b/Hero.prefab",
		"3": "a/Mat.mat",
		"4": "a/Hero.prefab",
	})

	found, _ := q.FindAsset("T")
	var got []string
	for _, f := range found {
		got = append(got, f.RelativePath)
	}
	want := []string{"a/Mat.mat", "a/Hero.prefab", "b/Hero.prefab", "z/Scene.unity"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func Test_QueryEngine_SeesUpdatesAfterFirstQuery(t *testing.T) {
	refs := NewReferenceIndex("")
	q := newTestEngine(t, refs, mapResolver{"G1": "a.prefab"})

	if found, _ := q.FindAsset("G2"); len(found) != 0 {
		t.Fatalf("expected empty result, got %v", found)
	}

	refs.Update("G1", []string{"fileID: 1, guid: G2"})

	if found, _ := q.FindAsset("G2"); len(found) != 1 {
		t.Errorf("expected update to be visible, got %d results", len(found))
	}
}

func Test_QueryEngine_TokenWithoutGuidScansAll(t *testing.T) {
	refs := NewReferenceIndex("")
	refs.Update("G1", []string{"fileID: 42, guid: X"})
	q := newTestEngine(t, refs, mapResolver{"G1": "a.prefab"})

	found, _ := q.Find("fileID: 42")
	if len(found) != 1 {
		t.Errorf("expected 1 result, got %d", len(found))
	}
	if found, _ := q.Find(""); found != nil {
		t.Errorf("expected nil for empty token, got %v", found)
	}
}

func Test_FileInfo_Fields(t *testing.T) {
	fi := NewFileInfo("/project", "Assets/Prefabs/Hero.prefab", FromStringSearch)

	if fi.FileName != "Hero" || fi.Extension != ".prefab" {
		t.Errorf("unexpected name/extension: %s %s", fi.FileName, fi.Extension)
	}
	if fi.Type() != assettype.GameObject {
		t.Errorf("expected GameObject, got %s", fi.Type())
	}
	if id := fi.Identifier(mapResolver{"G9": "Assets/Prefabs/Hero.prefab"}); id != "G9" {
		t.Errorf("expected G9, got %q", id)
	}
}
