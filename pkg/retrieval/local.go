package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
)

// LocalIndex is an optional chromem-go-backed fallback (see Client.Search):
// it is searched instead of the remote service when the Client has no base
// URL, and after the remote service has been exhausted or the context is
// cancelled otherwise. Adapted from the teacher's dual-collection vector
// store down to a single chunk collection. Spec's resilience contract
// ("retrieval exhaustion degrades to an empty chunk list") holds unchanged
// when LocalIndex is nil or empty.
type LocalIndex struct {
	collection *chromem.Collection
}

// NewLocalIndex opens (or creates) a persistent local chunk index under
// dataDir/retrieval/local_chunks.
func NewLocalIndex(dataDir string, embeddingFn chromem.EmbeddingFunc) (*LocalIndex, error) {
	dbPath := filepath.Join(dataDir, "retrieval", "local_chunks")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("create local index dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("open local chunk db: %w", err)
	}

	coll, err := db.GetOrCreateCollection("chunks", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create chunks collection: %w", err)
	}

	logger.InfoCF("retrieval", "local fallback index opened", map[string]interface{}{
		"path":  dbPath,
		"count": coll.Count(),
	})

	return &LocalIndex{collection: coll}, nil
}

// Index adds a chunk to the local fallback index.
func (li *LocalIndex) Index(ctx context.Context, chunk model.Chunk) error {
	doc := chromem.Document{
		ID:      chunk.ID,
		Content: chunk.Text,
	}
	if err := li.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Search returns up to limit local chunks matching query. It never returns
// an error for "no matches" — an empty slice is a normal outcome.
func (li *LocalIndex) Search(ctx context.Context, query string, limit int) ([]model.Chunk, error) {
	if li == nil || li.collection == nil || li.collection.Count() == 0 {
		return nil, nil
	}
	if limit > li.collection.Count() {
		limit = li.collection.Count()
	}

	results, err := li.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query local index: %w", err)
	}

	out := make([]model.Chunk, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		out = append(out, model.Chunk{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: map[string]interface{}{"source": "local_fallback", "indexed_at": time.Now().Format(time.RFC3339)},
			Score:    &score,
		})
	}
	return out, nil
}
