package index

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/lexandro/assetref-mcp/assets"
)

// guidFragment finds the identifier part of a reference token or query.
var guidFragment = regexp.MustCompile(`guid: ([a-zA-Z0-9]+)`)

// AssetToken is the exact-reference query token: any reference to the file.
func AssetToken(guid string) string {
	return "guid: " + guid
}

// ComponentToken is the component-reference query token: a reference to one sub-object of the file.
func ComponentToken(fileID int64, guid string) string {
	return fmt.Sprintf("fileID: %d, guid: %s", fileID, guid)
}

// QueryEngine answers "which files reference this token" over a ReferenceIndex.
// It keeps an in-memory bleve index of the identifiers each file references
// to narrow candidates, rebuilt whenever the ReferenceIndex generation moves.
// Every candidate is confirmed with a literal containment check.
type QueryEngine struct {
	refs     *ReferenceIndex
	resolver Resolver
	rootDir  string
	logger   *slog.Logger

	mu         sync.Mutex
	guids      bleve.Index
	generation uint64
	built      bool
}

// guidDocument is the bleve document stored per file identifier.
type guidDocument struct {
	Guids []string `json:"guids"`
}

// NewQueryEngine creates a query engine; Close releases its bleve index.
func NewQueryEngine(refs *ReferenceIndex, resolver Resolver, rootDir string, logger *slog.Logger) *QueryEngine {
	return &QueryEngine{refs: refs, resolver: resolver, rootDir: rootDir, logger: logger}
}

func buildGuidMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	guidFieldMapping := bleve.NewKeywordFieldMapping()
	guidFieldMapping.Store = false
	guidFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("guids", guidFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// FindAsset returns the files referencing any part of the asset guid.
func (q *QueryEngine) FindAsset(guid string) ([]*FileInfo, error) {
	return q.Find(AssetToken(guid))
}

// FindComponent returns the files referencing sub-object fileID of asset guid.
func (q *QueryEngine) FindComponent(fileID int64, guid string) ([]*FileInfo, error) {
	return q.Find(ComponentToken(fileID, guid))
}

// Find returns the files with a token equal to or containing token, sorted by
// (extension, path). Identifiers that no longer resolve, resolve to
// themselves, or resolve into the trash namespace are left out.
func (q *QueryEngine) Find(token string) ([]*FileInfo, error) {
	if token == "" {
		return nil, nil
	}

	snapshot, generation := q.refs.Snapshot()
	candidates, err := q.candidates(token, snapshot, generation)
	if err != nil {
		return nil, err
	}

	var results []*FileInfo
	for _, id := range candidates {
		if !containsToken(snapshot[id], token) {
			continue
		}
		path := q.resolver.PathForIdentifier(id)
		if path == "" || path == id || assets.InTrash(path) {
			q.logger.Debug("skipping unresolvable referrer", "identifier", id, "path", path)
			continue
		}
		results = append(results, NewFileInfo(q.rootDir, path, FromReference))
	}

	SortFileInfos(results)
	return results, nil
}

// candidates returns the identifiers worth checking for token. Without a
// guid fragment in the token every identifier is a candidate.
func (q *QueryEngine) candidates(token string, snapshot map[string][]string, generation uint64) ([]string, error) {
	m := guidFragment.FindStringSubmatch(token)
	if m == nil {
		ids := make([]string, 0, len(snapshot))
		for id := range snapshot {
			ids = append(ids, id)
		}
		return ids, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.refreshLocked(snapshot, generation); err != nil {
		return nil, err
	}

	count, err := q.guids.DocCount()
	if err != nil {
		return nil, fmt.Errorf("counting guid documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	// A token containing "guid: X" carries an identifier that starts with X.
	prefixQuery := bleve.NewPrefixQuery(m[1])
	prefixQuery.SetField("guids")
	request := bleve.NewSearchRequestOptions(prefixQuery, int(count), 0, false)

	result, err := q.guids.Search(request)
	if err != nil {
		return nil, fmt.Errorf("searching guid index: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// refreshLocked rebuilds the bleve index from snapshot when it is stale.
func (q *QueryEngine) refreshLocked(snapshot map[string][]string, generation uint64) error {
	if q.built && q.generation == generation {
		return nil
	}

	newIndex, err := bleve.NewMemOnly(buildGuidMapping())
	if err != nil {
		return fmt.Errorf("creating guid index: %w", err)
	}

	batch := newIndex.NewBatch()
	for id, tokens := range snapshot {
		if err := batch.Index(id, guidDocument{Guids: guidsOf(tokens)}); err != nil {
			newIndex.Close()
			return fmt.Errorf("indexing guids of %s: %w", id, err)
		}
	}
	if err := newIndex.Batch(batch); err != nil {
		newIndex.Close()
		return fmt.Errorf("committing guid index: %w", err)
	}

	if q.guids != nil {
		q.guids.Close()
	}
	q.guids = newIndex
	q.generation = generation
	q.built = true
	q.logger.Debug("rebuilt guid index", "files", len(snapshot), "generation", generation)
	return nil
}

// Close releases the bleve index.
func (q *QueryEngine) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.guids == nil {
		return nil
	}
	err := q.guids.Close()
	q.guids = nil
	q.built = false
	return err
}

func guidsOf(tokens []string) []string {
	seen := make(map[string]struct{})
	var guids []string
	for _, token := range tokens {
		for _, m := range guidFragment.FindAllStringSubmatch(token, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			guids = append(guids, m[1])
		}
	}
	return guids
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if strings.Contains(t, token) {
			return true
		}
	}
	return false
}
