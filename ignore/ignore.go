package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// RefIgnoreFile is the project-local ignore file read next to .gitignore.
const RefIgnoreFile = ".refignore"

// Matcher decides whether a path is skipped by scans and change recording.
// It combines the default patterns, .gitignore, .refignore and configured exclude globs.
// Reload takes the write lock; the query methods take the read lock.
type Matcher struct {
	mu               sync.RWMutex
	rootDir          string
	gitIgnore        gitignore.GitIgnore
	refIgnore        gitignore.GitIgnore
	excludes         []string
	maxFileSizeBytes int64
}

// MatcherOptions configures the ignore matcher.
type MatcherOptions struct {
	RootDir string
	// Excludes are doublestar globs matched against root-relative paths and base names.
	Excludes         []string
	MaxFileSizeBytes int64
}

// NewMatcher creates a matcher rooted at options.RootDir.
func NewMatcher(options MatcherOptions) *Matcher {
	m := &Matcher{
		rootDir:          options.RootDir,
		excludes:         options.Excludes,
		maxFileSizeBytes: options.MaxFileSizeBytes,
	}
	if m.maxFileSizeBytes <= 0 {
		m.maxFileSizeBytes = 256 * 1024 * 1024
	}

	m.gitIgnore = loadIgnoreFile(filepath.Join(options.RootDir, ".gitignore"), options.RootDir)
	m.refIgnore = loadIgnoreFile(filepath.Join(options.RootDir, RefIgnoreFile), options.RootDir)
	return m
}

// ShouldIgnore reports whether an absolute path is excluded.
func (m *Matcher) ShouldIgnore(absolutePath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	relativePath, err := filepath.Rel(m.rootDir, absolutePath)
	if err != nil {
		relativePath = absolutePath
	}
	relativePath = filepath.ToSlash(relativePath)

	if matchesDefaultPatterns(relativePath) {
		return true
	}

	isDir := false
	if info, err := os.Stat(absolutePath); err == nil {
		isDir = info.IsDir()
	}

	for _, gi := range []gitignore.GitIgnore{m.gitIgnore, m.refIgnore} {
		if gi != nil && ignoredByFile(gi, relativePath, isDir) {
			return true
		}
	}

	return m.matchesExcludes(relativePath)
}

// ignoredByFile checks the path and each of its parent directories, so a
// directory rule also covers files reported individually by the watcher.
// Relative() does not require the path to exist, so removed files still match.
func ignoredByFile(gi gitignore.GitIgnore, relativePath string, isDir bool) bool {
	if match := gi.Relative(relativePath, isDir); match != nil && match.Ignore() {
		return true
	}
	parts := strings.Split(relativePath, "/")
	for i := len(parts) - 1; i > 0; i-- {
		parent := strings.Join(parts[:i], "/")
		if match := gi.Relative(parent, true); match != nil && match.Ignore() {
			return true
		}
	}
	return false
}

// ShouldIgnoreDir reports whether a directory should be skipped entirely during a walk.
func (m *Matcher) ShouldIgnoreDir(absolutePath string) bool {
	switch filepath.Base(absolutePath) {
	case ".git", ".svn", ".hg", "Library", "Temp", "Logs", "obj", "UserSettings", ".vs", ".idea", "node_modules":
		return true
	}
	return m.ShouldIgnore(absolutePath)
}

// IsFileTooLarge reports whether a file exceeds the configured size limit.
func (m *Matcher) IsFileTooLarge(fileSize int64) bool {
	return fileSize > m.maxFileSizeBytes
}

func (m *Matcher) matchesExcludes(relativePath string) bool {
	baseName := filepath.Base(relativePath)
	for _, pattern := range m.excludes {
		if ok, err := doublestar.Match(pattern, relativePath); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, baseName); err == nil && ok {
			return true
		}
	}
	return false
}

// Reload re-reads .gitignore and .refignore.
func (m *Matcher) Reload() {
	newGitIgnore := loadIgnoreFile(filepath.Join(m.rootDir, ".gitignore"), m.rootDir)
	newRefIgnore := loadIgnoreFile(filepath.Join(m.rootDir, RefIgnoreFile), m.rootDir)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gitIgnore = newGitIgnore
	m.refIgnore = newRefIgnore
}

// IsIgnoreFile reports whether a base name is one of the ignore files the matcher reads.
func IsIgnoreFile(baseName string) bool {
	return baseName == ".gitignore" || baseName == RefIgnoreFile
}

func matchesDefaultPatterns(relativePath string) bool {
	for _, part := range strings.Split(relativePath, "/") {
		for _, name := range DefaultIgnoredNames {
			if strings.EqualFold(part, name) {
				return true
			}
		}
	}
	baseName := strings.ToLower(filepath.Base(relativePath))
	for _, pattern := range DefaultIgnoredGlobs {
		if ok, err := filepath.Match(pattern, baseName); err == nil && ok {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads an ignore file through an io.Reader so the handle is closed promptly on Windows.
func loadIgnoreFile(filePath string, baseDir string) gitignore.GitIgnore {
	f, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
