// Package retrieval fetches the context block that grounds a chat answer.
//
// A query is embedded, matched against the vector index and the text of
// every sufficiently similar chunk is joined into a single block.
package retrieval

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks isd-finance-ai/internal/retrieval Embedder
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks isd-finance-ai/internal/retrieval ChunkStore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"isd-finance-ai/internal/contextutil"
	"isd-finance-ai/internal/storage"
	"isd-finance-ai/internal/vectorstore"
)

// Payload keys that may carry chunk text, in lookup order.
var textPayloadKeys = []string{"chunk", "text"}

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore resolves chunk text by vector point ID when the payload lacks it.
type ChunkStore interface {
	GetByID(ctx context.Context, id string) (*storage.Chunk, error)
}

// Options tunes a Retriever.
type Options struct {
	// Collection is the Qdrant collection or Weaviate class to search.
	Collection string
	// TopK is the number of nearest points requested from the store.
	TopK int
	// MinScore is an exclusive lower bound on similarity.
	MinScore float32
	// MaxChars caps the returned block in runes. Zero disables the cap.
	MaxChars int
}

// DefaultOptions returns the defaults used when nothing is configured.
func DefaultOptions(collection string) Options {
	return Options{
		Collection: collection,
		TopK:       3,
		MinScore:   0.7,
		MaxChars:   3000,
	}
}

// Retriever builds context blocks from a vector index.
type Retriever struct {
	embedder Embedder
	store    vectorstore.VectorStore
	chunks   ChunkStore
	opts     Options
	tracer   trace.Tracer
}

// NewRetriever creates a Retriever. chunks may be nil when every point
// carries its text in the payload.
func NewRetriever(embedder Embedder, store vectorstore.VectorStore, chunks ChunkStore, opts Options) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		chunks:   chunks,
		opts:     opts,
		tracer:   otel.Tracer("isd-finance-ai/internal/retrieval"),
	}
}

// GetContext returns the context block for query.
// namespace restricts the search to points whose "namespace" payload matches;
// empty searches the whole collection. No qualifying match yields "".
func (r *Retriever) GetContext(ctx context.Context, query, namespace string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "Retriever.GetContext")
	defer span.End()
	logger := contextutil.LoggerFromContext(ctx)

	embeddings, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return "", fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		span.SetStatus(codes.Error, "embedding failed")
		return "", fmt.Errorf("no embedding returned for query")
	}

	var filters map[string]any
	if namespace != "" {
		filters = map[string]any{"namespace": namespace}
	}

	results, err := r.store.Search(ctx, r.opts.Collection, embeddings[0], r.opts.TopK, filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return "", fmt.Errorf("failed to search vector store: %w", err)
	}

	texts := make([]string, 0, len(results))
	for _, result := range results {
		if result.Score <= r.opts.MinScore {
			continue
		}
		text, err := r.resolveText(ctx, result)
		if err != nil {
			logger.WarnContext(ctx, "skipping match without text", "point_id", result.PointID, "error", err)
			continue
		}
		texts = append(texts, text)
	}

	block := truncateRunes(strings.Join(texts, "\n"), r.opts.MaxChars)

	span.SetAttributes(
		attribute.Int("retrieval.matches", len(results)),
		attribute.Int("retrieval.qualifying", len(texts)),
		attribute.Int("retrieval.context_length", len(block)),
	)
	logger.DebugContext(ctx, "context retrieved",
		"namespace", namespace,
		"matches", len(results),
		"qualifying", len(texts),
		"context_length", len(block),
	)

	return block, nil
}

var errNoText = errors.New("no text in payload and no chunk store configured")

func (r *Retriever) resolveText(ctx context.Context, result vectorstore.SearchResult) (string, error) {
	for _, key := range textPayloadKeys {
		if text, ok := result.Meta[key].(string); ok && text != "" {
			return text, nil
		}
	}

	if r.chunks == nil {
		return "", errNoText
	}

	chunk, err := r.chunks.GetByID(ctx, result.PointID)
	if err != nil {
		return "", err
	}
	return chunk.Text, nil
}

// truncateRunes returns at most limit runes of s; limit <= 0 means no limit.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := 0
	for i := range s {
		if runes == limit {
			return s[:i]
		}
		runes++
	}
	return s
}
