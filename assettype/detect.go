package assettype

import (
	"path/filepath"
	"strings"
	"sync"
)

// Type is the semantic type tag of an asset file.
type Type string

const (
	Object           Type = "Object"
	GameObject       Type = "GameObject"
	Scene            Type = "Scene"
	Material         Type = "Material"
	Script           Type = "Script"
	Animation        Type = "Animation"
	ScriptableObject Type = "ScriptableObject"
)

// Registry maps lower-case extensions (with leading dot) to type tags.
// It is populated at startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry returns a registry pre-populated with the built-in extensions.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]Type)}
	r.Register(".prefab", GameObject)
	r.Register(".unity", Scene)
	r.Register(".mat", Material)
	r.Register(".cs", Script)
	r.Register(".anim", Animation)
	r.Register(".asset", ScriptableObject)
	return r
}

// Register adds or replaces the tag for an extension.
func (r *Registry) Register(extension string, t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[normalizeExtension(extension)] = t
}

// ForExtension returns the tag for an extension, Object when unknown.
func (r *Registry) ForExtension(extension string) Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.types[normalizeExtension(extension)]; ok {
		return t
	}
	return Object
}

// ForPath returns the tag for a file path based on its extension.
func (r *Registry) ForPath(path string) Type {
	return r.ForExtension(filepath.Ext(path))
}

// Default is the process-wide registry used by FileInfo when none is injected.
var Default = NewRegistry()

func normalizeExtension(extension string) string {
	extension = strings.ToLower(extension)
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return extension
}
