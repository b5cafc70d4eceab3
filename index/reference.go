package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/lexandro/assetref-mcp/assets"
)

// pair and persistedIndex are the on-disk layout of the reference index.
type pair struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

type persistedIndex struct {
	Pairs []pair `json:"pairs"`
}

// ReferenceIndex maps a file identifier to the reference tokens found in that file.
// Token lists may hold duplicates in memory; Flush deduplicates them.
// The lock guards map mutation only and is never held across file I/O.
type ReferenceIndex struct {
	mu         sync.RWMutex
	refs       map[string][]string
	path       string
	generation uint64
}

// NewReferenceIndex creates an empty index persisted at path.
func NewReferenceIndex(path string) *ReferenceIndex {
	return &ReferenceIndex{
		refs: make(map[string][]string),
		path: path,
	}
}

// Load replaces the in-memory content with the table persisted at path and
// makes path the flush target. A missing file leaves the index empty.
func (ri *ReferenceIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		ri.mu.Lock()
		ri.path = path
		ri.refs = make(map[string][]string)
		ri.generation++
		ri.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading reference index %s: %w", path, err)
	}

	var persisted persistedIndex
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("parsing reference index %s: %w", path, err)
	}

	refs := make(map[string][]string, len(persisted.Pairs))
	for _, p := range persisted.Pairs {
		if p.Values == nil {
			p.Values = []string{}
		}
		refs[p.Key] = p.Values
	}

	ri.mu.Lock()
	ri.path = path
	ri.refs = refs
	ri.generation++
	ri.mu.Unlock()
	return nil
}

// Path returns the flush target.
func (ri *ReferenceIndex) Path() string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.path
}

// Update sets or overwrites the token list of key.
func (ri *ReferenceIndex) Update(key string, tokens []string) {
	if tokens == nil {
		tokens = []string{}
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.refs[key] = tokens
	ri.generation++
}

// Remove deletes key; a missing key is a no-op.
func (ri *ReferenceIndex) Remove(key string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if _, ok := ri.refs[key]; ok {
		delete(ri.refs, key)
		ri.generation++
	}
}

// Clear drops every entry.
func (ri *ReferenceIndex) Clear() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.refs = make(map[string][]string)
	ri.generation++
}

// BulkReplace swaps in refs as the whole backing map. The caller hands over
// ownership of refs. Only the coordinating goroutine of a full rebuild calls
// it; the lock just keeps concurrent readers race-free.
func (ri *ReferenceIndex) BulkReplace(refs map[string][]string) {
	for key, tokens := range refs {
		if tokens == nil {
			refs[key] = []string{}
		}
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.refs = refs
	ri.generation++
}

// Tokens returns a copy of the token list of key.
func (ri *ReferenceIndex) Tokens(key string) ([]string, bool) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	tokens, ok := ri.refs[key]
	if !ok {
		return nil, false
	}
	return append([]string(nil), tokens...), true
}

// Len returns the number of keys.
func (ri *ReferenceIndex) Len() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.refs)
}

// Generation increases on every mutation; readers use it to detect staleness.
func (ri *ReferenceIndex) Generation() uint64 {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.generation
}

// Snapshot returns a deep copy of the map together with its generation.
func (ri *ReferenceIndex) Snapshot() (map[string][]string, uint64) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	out := make(map[string][]string, len(ri.refs))
	for key, tokens := range ri.refs {
		out[key] = append([]string(nil), tokens...)
	}
	return out, ri.generation
}

// Flush deduplicates every token list and writes the table to the configured
// path, replacing the previous file atomically. Keys are written sorted.
func (ri *ReferenceIndex) Flush() error {
	snapshot, _ := ri.Snapshot()
	path := ri.Path()

	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	persisted := persistedIndex{Pairs: make([]pair, 0, len(keys))}
	for _, key := range keys {
		persisted.Pairs = append(persisted.Pairs, pair{Key: key, Values: dedupe(snapshot[key])})
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("encoding reference index: %w", err)
	}
	if err := assets.WriteFile(path, data); err != nil {
		return fmt.Errorf("writing reference index %s: %w", path, err)
	}
	return nil
}

// dedupe keeps the first occurrence of each token.
func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
