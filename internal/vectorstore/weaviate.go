package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"isd-finance-ai/internal/contextutil"
)

// WeaviateStore implements VectorStore using Weaviate's GraphQL nearVector search.
// The collection argument of each call is the Weaviate class name.
type WeaviateStore struct {
	client     *weaviate.Client
	properties []string
}

// NewWeaviateStore creates a new Weaviate vector store client.
// properties lists the class properties returned as result payload.
func NewWeaviateStore(scheme, host string, properties []string) (*WeaviateStore, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	return &WeaviateStore{
		client:     client,
		properties: properties,
	}, nil
}

// Search performs a nearVector search with optional equality filters.
func (s *WeaviateStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	fields := make([]graphql.Field, 0, len(s.properties)+1)
	for _, prop := range s.properties {
		fields = append(fields, graphql.Field{Name: prop})
	}
	fields = append(fields, graphql.Field{
		Name: "_additional",
		Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		},
	})

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(query)

	get := s.client.GraphQL().Get().
		WithClassName(collection).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...)
	if where := buildWhere(filters); where != nil {
		get = get.WithWhere(where)
	}

	result, err := get.Do(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search weaviate", "class", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	if len(result.Errors) > 0 && result.Errors[0] != nil {
		return nil, fmt.Errorf("failed to search points: %s", result.Errors[0].Message)
	}

	raw, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal weaviate response: %w", err)
	}
	results, err := parseWeaviateResults(raw, collection)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "search completed", "class", collection, "k", k, "results", len(results))
	return results, nil
}

// CollectionExists checks if the class exists in the Weaviate schema.
func (s *WeaviateStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(collection).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check class existence: %w", err)
	}
	return exists, nil
}

// weaviateGetResponse mirrors the "data" section of a GraphQL Get query.
type weaviateGetResponse struct {
	Get map[string][]map[string]any `json:"Get"`
}

// parseWeaviateResults decodes the JSON data of a Get query into search results.
// Every property other than _additional becomes payload metadata.
func parseWeaviateResults(raw []byte, class string) ([]SearchResult, error) {
	var resp weaviateGetResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal weaviate response: %w", err)
	}

	objects := resp.Get[class]
	results := make([]SearchResult, 0, len(objects))
	for _, obj := range objects {
		var result SearchResult
		result.Meta = make(map[string]any, len(obj))
		for key, value := range obj {
			if key != "_additional" {
				result.Meta[key] = value
				continue
			}
			additional, ok := value.(map[string]any)
			if !ok {
				continue
			}
			result.PointID, _ = additional["id"].(string)
			if certainty, ok := additional["certainty"].(float64); ok {
				result.Score = float32(certainty)
			}
		}
		results = append(results, result)
	}

	return results, nil
}

// buildWhere turns equality filters into a Weaviate where clause.
func buildWhere(filterMap map[string]any) *filters.WhereBuilder {
	keys := make([]string, 0, len(filterMap))
	for key := range filterMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, key := range keys {
		where := filters.Where().
			WithPath([]string{key}).
			WithOperator(filters.Equal)
		switch v := filterMap[key].(type) {
		case string:
			where = where.WithValueString(v)
		case int:
			where = where.WithValueInt(int64(v))
		case int64:
			where = where.WithValueInt(v)
		case bool:
			where = where.WithValueBoolean(v)
		default:
			continue
		}
		operands = append(operands, where)
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}
