package assets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// MetaExtension is the sidecar extension holding an asset's identifier.
const MetaExtension = ".meta"

// TrashMarker is the path fragment of the namespace deleted identifiers are parked in.
const TrashMarker = "__DELETED_GUID_Trash"

var guidLine = regexp.MustCompile(`^guid:\s*([0-9a-zA-Z]+)\s*$`)

// Ignorer is the subset of the ignore matcher the resolver walk needs.
type Ignorer interface {
	ShouldIgnoreDir(absolutePath string) bool
}

// MetaResolver maps identifiers to root-relative paths and back, using the
// "guid: <id>" line of each asset's .meta sidecar. Paths use forward slashes.
type MetaResolver struct {
	mu      sync.RWMutex
	rootDir string
	ignorer Ignorer
	byID    map[string]string
	byPath  map[string]string
}

// NewMetaResolver creates an empty resolver; call Refresh to populate it.
// ignorer may be nil.
func NewMetaResolver(rootDir string, ignorer Ignorer) *MetaResolver {
	return &MetaResolver{
		rootDir: rootDir,
		ignorer: ignorer,
		byID:    make(map[string]string),
		byPath:  make(map[string]string),
	}
}

// Refresh rebuilds both maps from every .meta file under the root.
// Returns the number of identifiers found.
func (r *MetaResolver) Refresh() (int, error) {
	byID := make(map[string]string)
	byPath := make(map[string]string)

	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != r.rootDir && r.ignorer != nil && r.ignorer.ShouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsMetaFile(path) {
			return nil
		}
		id, err := readMetaIdentifier(path)
		if err != nil || id == "" {
			return nil
		}
		rel := r.relative(strings.TrimSuffix(path, MetaExtension))
		byID[id] = rel
		byPath[rel] = id
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", r.rootDir, err)
	}

	r.mu.Lock()
	r.byID = byID
	r.byPath = byPath
	r.mu.Unlock()
	return len(byID), nil
}

// PathForIdentifier returns the root-relative path for id, or "" when unknown.
func (r *MetaResolver) PathForIdentifier(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// IdentifierForPath returns the identifier of a root-relative path, or "" when unknown.
func (r *MetaResolver) IdentifierForPath(relativePath string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPath[filepath.ToSlash(relativePath)]
}

// Set records a mapping directly.
func (r *MetaResolver) Set(id, relativePath string) {
	relativePath = filepath.ToSlash(relativePath)
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[id]; ok {
		delete(r.byPath, old)
	}
	r.byID[id] = relativePath
	r.byPath[relativePath] = id
}

// Forget drops the mapping of an asset path.
func (r *MetaResolver) Forget(relativePath string) {
	relativePath = filepath.ToSlash(relativePath)
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPath[relativePath]; ok {
		delete(r.byID, id)
		delete(r.byPath, relativePath)
	}
}

// ObserveMeta re-reads one .meta file after it changed on disk. A missing
// file forgets the asset it described.
func (r *MetaResolver) ObserveMeta(absoluteMetaPath string) {
	rel := r.relative(strings.TrimSuffix(absoluteMetaPath, MetaExtension))
	id, err := readMetaIdentifier(absoluteMetaPath)
	if err != nil || id == "" {
		r.Forget(rel)
		return
	}
	r.Set(id, rel)
}

// Len returns the number of known identifiers.
func (r *MetaResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MetaResolver) relative(absolutePath string) string {
	rel, err := filepath.Rel(r.rootDir, absolutePath)
	if err != nil {
		rel = absolutePath
	}
	return filepath.ToSlash(rel)
}

// IsMetaFile reports whether path is a .meta sidecar.
func IsMetaFile(path string) bool {
	return strings.HasSuffix(path, MetaExtension)
}

// InTrash reports whether a resolved path lies in the deleted-identifier namespace.
func InTrash(path string) bool {
	return strings.Contains(path, TrashMarker)
}

func readMetaIdentifier(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lines := 0; scanner.Scan() && lines < 16; lines++ {
		if m := guidLine.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1], nil
		}
	}
	return "", scanner.Err()
}
