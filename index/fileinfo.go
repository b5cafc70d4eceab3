package index

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lexandro/assetref-mcp/assettype"
)

// Resolver translates between file identifiers and root-relative paths.
// Both directions return "" when the other side is unknown.
type Resolver interface {
	PathForIdentifier(id string) string
	IdentifierForPath(relativePath string) string
}

// AssetFrom records how a file ended up in a result set.
type AssetFrom int

const (
	FromStringSearch AssetFrom = iota
	FromReference
	FromResources
)

func (a AssetFrom) String() string {
	switch a {
	case FromStringSearch:
		return "string"
	case FromReference:
		return "reference"
	case FromResources:
		return "resources"
	default:
		return "unknown"
	}
}

// FileInfo describes one found file. Path fields are fixed at creation; the
// type tag and identifier are resolved on first use.
type FileInfo struct {
	RelativePath string // forward slashes, relative to the project root
	AbsolutePath string
	FileName     string // base name without extension
	Extension    string // with leading dot, as on disk
	From         AssetFrom

	typeOnce  sync.Once
	assetType assettype.Type

	idOnce     sync.Once
	identifier string
}

// NewFileInfo builds a FileInfo for a root-relative path.
func NewFileInfo(rootDir, relativePath string, from AssetFrom) *FileInfo {
	relativePath = filepath.ToSlash(relativePath)
	ext := filepath.Ext(relativePath)
	return &FileInfo{
		RelativePath: relativePath,
		AbsolutePath: filepath.Join(rootDir, filepath.FromSlash(relativePath)),
		FileName:     strings.TrimSuffix(filepath.Base(relativePath), ext),
		Extension:    ext,
		From:         from,
	}
}

// Type returns the semantic type tag from the default registry.
func (fi *FileInfo) Type() assettype.Type {
	fi.typeOnce.Do(func() {
		fi.assetType = assettype.Default.ForExtension(fi.Extension)
	})
	return fi.assetType
}

// Identifier resolves and caches the file's identifier.
func (fi *FileInfo) Identifier(resolver Resolver) string {
	fi.idOnce.Do(func() {
		fi.identifier = resolver.IdentifierForPath(fi.RelativePath)
	})
	return fi.identifier
}

// SortFileInfos orders files by extension, then relative path, both ordinal,
// so files of one type stay grouped for review.
func SortFileInfos(files []*FileInfo) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Extension != files[j].Extension {
			return files[i].Extension < files[j].Extension
		}
		return files[i].RelativePath < files[j].RelativePath
	})
}
