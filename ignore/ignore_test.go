package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_Matcher_DefaultPatterns_LibraryDir(t *testing.T) {
	tmpDir := t.TempDir()
	matcher := NewMatcher(MatcherOptions{RootDir: tmpDir})

	cachePath := filepath.Join(tmpDir, "Library", "ArtifactDB")
	if !matcher.ShouldIgnore(cachePath) {
		t.Error("expected Library files to be ignored")
	}
}

func Test_Matcher_DefaultPatterns_GitDir(t *testing.T) {
	tmpDir := t.TempDir()
	matcher := NewMatcher(MatcherOptions{RootDir: tmpDir})

	if !matcher.ShouldIgnore(filepath.Join(tmpDir, ".git", "config")) {
		t.Error("expected .git files to be ignored")
	}
}

func Test_Matcher_DefaultPatterns_AllowsAssets(t *testing.T) {
	tmpDir := t.TempDir()
	matcher := NewMatcher(MatcherOptions{RootDir: tmpDir})

	prefabPath := filepath.Join(tmpDir, "Assets", "Hero.prefab")
	if matcher.ShouldIgnore(prefabPath) {
		t.Error("expected .prefab files to NOT be ignored")
	}
}

func Test_Matcher_GitignoreIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("*.generated.asset\nsecret/\n"), 0644)

	matcher := NewMatcher(MatcherOptions{RootDir: tmpDir})

	if !matcher.ShouldIgnore(filepath.Join(tmpDir, "Assets", "table.generated.asset")) {
		t.Error("expected .gitignore pattern to ignore *.generated.asset")
	}
	if matcher.ShouldIgnore(filepath.Join(tmpDir, "Assets", "table.asset")) {
		t.Error("expected plain .asset files to NOT be ignored by .gitignore")
	}
}

func Test_Matcher_RefignoreIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, RefIgnoreFile), []byte("Assets/ThirdParty/\n"), 0644)

	matcher := NewMatcher(MatcherOptions{RootDir: tmpDir})

	if !matcher.ShouldIgnore(filepath.Join(tmpDir, "Assets", "ThirdParty", "Plugin.prefab")) {
		t.Error("expected .refignore pattern to ignore Assets/ThirdParty/")
	}
}

func Test_Matcher_Excludes(t *testing.T) {
	tmpDir := t.TempDir()
	matcher := NewMatcher(MatcherOptions{
		RootDir:  tmpDir,
		Excludes: []string{"*.bak", "Assets/Generated/**"},
	})

	if !matcher.ShouldIgnore(filepath.Join(tmpDir, "Assets", "Hero.prefab.bak")) {
		t.Error("expected base-name exclude to match")
	}
	if !matcher.ShouldIgnore(filepath.Join(tmpDir, "Assets", "Generated", "deep", "a.mat")) {
		t.Error("expected doublestar exclude to match nested file")
	}
	if matcher.ShouldIgnore(filepath.Join(tmpDir, "Assets", "a.mat")) {
		t.Error("expected unrelated file to NOT be excluded")
	}
}

func Test_Matcher_FileSizeLimit(t *testing.T) {
	matcher := NewMatcher(MatcherOptions{RootDir: t.TempDir(), MaxFileSizeBytes: 1000})

	if matcher.IsFileTooLarge(500) {
		t.Error("500 bytes should not be too large")
	}
	if !matcher.IsFileTooLarge(1001) {
		t.Error("1001 bytes should be too large")
	}
}

func Test_Matcher_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	matcher := NewMatcher(MatcherOptions{RootDir: tmpDir})

	target := filepath.Join(tmpDir, "Assets", "scratch.asset")
	if matcher.ShouldIgnore(target) {
		t.Fatal("expected file to be visible before reload")
	}

	os.WriteFile(filepath.Join(tmpDir, RefIgnoreFile), []byte("scratch.asset\n"), 0644)
	matcher.Reload()

	if !matcher.ShouldIgnore(target) {
		t.Error("expected reloaded .refignore to apply")
	}
}

func Test_IsIgnoreFile(t *testing.T) {
	if !IsIgnoreFile(".gitignore") || !IsIgnoreFile(".refignore") {
		t.Error("expected both ignore files to be recognised")
	}
	if IsIgnoreFile("Hero.prefab") {
		t.Error("expected ordinary file not to be an ignore file")
	}
}
