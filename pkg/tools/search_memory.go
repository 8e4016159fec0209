package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/sipeed/picoclaw/pkg/model"
)

// Searcher is the capability search_memory delegates to — satisfied by
// retrieval.Client, so this tool shares the same retrieval path as C5
// rather than opening a second one. Adapted from the teacher's
// pkg/tools/memory_search.go, which wrapped a dedicated vector store
// instead of the shared retrieval client.
type Searcher interface {
	Search(ctx context.Context, query string) []model.Chunk
}

// RegisterSearchMemory registers a second example tool, supplementing the
// one named explicitly by the data model (get_user_data), demonstrating a
// tool built on top of an existing capability rather than a new backend.
func RegisterSearchMemory(r *Registry, searcher Searcher) {
	r.Register(ToolSpec{
		Name:        "search_memory",
		Description: "Searches the knowledge base for chunks relevant to a query.",
		InputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
			},
			"required": []string{"query"},
		},
		OutputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"results": map[string]interface{}{"type": "string"},
			},
		},
	}, func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return map[string]interface{}{"results": ""}, nil
		}
		chunks := searcher.Search(ctx, query)
		return map[string]interface{}{"results": formatChunks(chunks)}, nil
	})
}

func formatChunks(chunks []model.Chunk) string {
	if len(chunks) == 0 {
		return "No memories found."
	}
	var sb strings.Builder
	for i, c := range chunks {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, c.Text))
	}
	return sb.String()
}
