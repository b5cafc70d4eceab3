package search

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenPattern = `fileID: -?\d*, guid: [a-zA-Z0-9]*`

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func identityKey(header string) (string, bool) {
	return "id:" + header, true
}

func Test_ParseGrouped_SpecExample(t *testing.T) {
	lines := []string{"fileA.ext", "fileID: 1, guid: G2", "fileB.ext", "fileID: 3, guid: G4"}

	groups, err := ParseGrouped(lines, "fileID:", identityKey)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"id:fileA.ext": {"fileID: 1, guid: G2"},
		"id:fileB.ext": {"fileID: 3, guid: G4"},
	}, groups)
}

func Test_ParseGrouped_MatchBeforeHeader(t *testing.T) {
	_, err := ParseGrouped([]string{"fileID: 1, guid: G2", "fileA.ext"}, "fileID:", identityKey)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func Test_ParseGrouped_SkipsBlankSeparators(t *testing.T) {
	lines := []string{"a.prefab", "fileID: 1, guid: X", "", "b.prefab", "fileID: 2, guid: Y", "fileID: 2, guid: Y"}

	groups, err := ParseGrouped(lines, "fileID:", identityKey)
	require.NoError(t, err)

	assert.Len(t, groups, 2)
	assert.Equal(t, []string{"fileID: 2, guid: Y", "fileID: 2, guid: Y"}, groups["id:b.prefab"])
}

func Test_ParseGrouped_DropsUnresolvedGroup(t *testing.T) {
	keyOf := func(header string) (string, bool) {
		if header == "gone.prefab" {
			return "", false
		}
		return header, true
	}
	lines := []string{"gone.prefab", "fileID: 1, guid: X", "kept.prefab", "fileID: 2, guid: Y"}

	groups, err := ParseGrouped(lines, "fileID:", keyOf)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"kept.prefab": {"fileID: 2, guid: Y"}}, groups)
}

func Test_ParseGrouped_EmptyInput(t *testing.T) {
	groups, err := ParseGrouped(nil, "fileID:", identityKey)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func Test_Args_Build(t *testing.T) {
	args := Args{
		Pattern:       tokenPattern,
		Root:          "/project/Assets",
		Heading:       true,
		OnlyMatching:  true,
		CaseSensitive: true,
		Includes:      []string{"*.prefab", "*.unity"},
		Excludes:      []string{"guidMap.json"},
	}

	argv := args.Build()
	joined := strings.Join(argv, " ")

	assert.Contains(t, joined, "--heading")
	assert.Contains(t, joined, "--only-matching")
	assert.Contains(t, joined, "--case-sensitive")
	assert.Contains(t, joined, "--no-line-number")
	assert.Contains(t, joined, "--glob *.prefab --glob *.unity --glob !guidMap.json")
	assert.Equal(t, []string{"--regexp", tokenPattern, "--", "/project/Assets"}, argv[len(argv)-4:])
}

func Test_Args_Build_FilesOnlyFixed(t *testing.T) {
	argv := Args{Pattern: "Hero", Root: ".", FilesOnly: true, FixedStrings: true}.Build()

	assert.Contains(t, argv, "--files-with-matches")
	assert.Contains(t, argv, "--fixed-strings")
	assert.Contains(t, argv, "--ignore-case")
	assert.NotContains(t, argv, "--heading")
}

func Test_Native_HeadingOnlyMatching(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "Assets/a.prefab", "m_Script: {fileID: 11500000, guid: abc, type: 3}\nx: {fileID: 1, guid: def}\n")
	writeFile(t, root, "Assets/b.prefab", "nothing here\n")
	c := writeFile(t, root, "Assets/c.unity", "{fileID: -7, guid: ghi}\n")
	writeFile(t, root, "Assets/d.txt", "{fileID: 5, guid: skip}\n")

	lines, err := NewNative(nil).Invoke(context.Background(), Args{
		Pattern:       tokenPattern,
		Root:          root,
		Heading:       true,
		OnlyMatching:  true,
		CaseSensitive: true,
		Includes:      []string{"*.prefab", "*.unity"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		a, "fileID: 11500000, guid: abc", "fileID: 1, guid: def",
		"",
		c, "fileID: -7, guid: ghi",
	}, lines)
}

func Test_Native_FilesOnlyFixedString(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.asset", "name: Hero (clone)\n")
	writeFile(t, root, "b.asset", "name: hero\n")

	lines, err := NewNative(nil).Invoke(context.Background(), Args{
		Pattern:       "Hero (clone)",
		Root:          root,
		FilesOnly:     true,
		FixedStrings:  true,
		CaseSensitive: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{a}, lines)
}

func Test_Native_Excludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guidMap.json", "fileID: 1, guid: X\n")
	b := writeFile(t, root, "b.asset", "fileID: 2, guid: Y\n")

	lines, err := NewNative(nil).Invoke(context.Background(), Args{
		Pattern:      tokenPattern,
		Root:         root,
		FilesOnly:    true,
		Excludes:     []string{"guidMap.json"},
		OnlyMatching: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{b}, lines)
}

func Test_Native_InvalidPattern(t *testing.T) {
	_, err := NewNative(nil).Invoke(context.Background(), Args{Pattern: "(", Root: t.TempDir()})

	assert.ErrorIs(t, err, ErrSubprocess)
}

func Test_Ripgrep_MissingBinary(t *testing.T) {
	rg := NewRipgrep(filepath.Join(t.TempDir(), "no-such-rg"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	lines, err := rg.Invoke(context.Background(), Args{Pattern: "x", Root: t.TempDir()})

	assert.ErrorIs(t, err, ErrSubprocess)
	assert.Nil(t, lines)
}

func Test_Ripgrep_MatchesNative(t *testing.T) {
	rgPath, err := exec.LookPath("rg")
	if err != nil {
		t.Skip("rg not installed")
	}
	root := t.TempDir()
	writeFile(t, root, "a.prefab", "{fileID: 1, guid: abc}\n")

	args := Args{Pattern: tokenPattern, Root: root, Heading: true, OnlyMatching: true, CaseSensitive: true}
	lines, err := NewRipgrep(rgPath, slog.New(slog.NewTextHandler(io.Discard, nil))).Invoke(context.Background(), args)
	require.NoError(t, err)

	want, err := NewNative(nil).Invoke(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, want, lines)
}

func Test_Ripgrep_NoMatchesIsEmptySuccess(t *testing.T) {
	rgPath, err := exec.LookPath("rg")
	if err != nil {
		t.Skip("rg not installed")
	}
	root := t.TempDir()
	writeFile(t, root, "a.prefab", "nothing\n")

	lines, err := NewRipgrep(rgPath, slog.New(slog.NewTextHandler(io.Discard, nil))).Invoke(context.Background(),
		Args{Pattern: tokenPattern, Root: root, Heading: true})

	require.NoError(t, err)
	assert.Empty(t, lines)
}

func Test_InvokeAsync_DeliversResult(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.asset", "hello\n")

	type outcome struct {
		lines []string
		err   error
	}
	ch := make(chan outcome, 1)
	InvokeAsync(context.Background(), NewNative(nil), Args{Pattern: "hello", Root: root, FilesOnly: true}, func(lines []string, err error) {
		ch <- outcome{lines, err}
	})

	select {
	case got := <-ch:
		require.NoError(t, got.err)
		assert.Equal(t, []string{a}, got.lines)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func Test_SplitLines(t *testing.T) {
	assert.Nil(t, SplitLines([]byte("\n")))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines([]byte("a\r\n\r\nb\r\n")))
}
