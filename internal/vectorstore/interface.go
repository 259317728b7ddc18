package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks isd-finance-ai/internal/vectorstore VectorStore

import "context"

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the read-side operations used for context retrieval.
// The index is populated out of band; this service never writes to it.
type VectorStore interface {
	// Search performs a similarity search with optional payload equality filters.
	// Results are ordered by descending score.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)

	// CollectionExists reports whether the collection (or class) exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}
