package weaviate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"textbook-rag/apps/backend/internal/retrieval"
	"textbook-rag/apps/backend/internal/text"
	"textbook-rag/apps/backend/internal/vector"
)

// Store implements retrieval.SimilarityIndex on the vector.ClassName class.
// Similarity is reported as 1 - cosine distance.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.NewWeaviateSchema(s.client).Ensure(ctx)
}

func (s *Store) Upsert(ctx context.Context, v retrieval.IndexedVector) error {
	return s.UpsertMany(ctx, []retrieval.IndexedVector{v})
}

// UpsertMany writes through the batch endpoint, which replaces objects whose
// id already exists.
func (s *Store) UpsertMany(ctx context.Context, vs []retrieval.IndexedVector) error {
	if len(vs) == 0 {
		return nil
	}

	objs := make([]*models.Object, len(vs))
	for i, v := range vs {
		objs[i] = &models.Object{
			Class: vector.ClassName,
			ID:    strfmt.UUID(v.ID),
			Properties: map[string]interface{}{
				"text":          v.Text,
				"sourceId":      v.Metadata.SourceID,
				"sequenceIndex": v.Metadata.SequenceIndex,
				"kind":          string(v.Metadata.Kind),
				"sourceLength":  v.Metadata.SourceLength,
				"position":      v.Metadata.Position,
				"totalUnits":    v.Metadata.TotalUnits,
			},
			Vector: v.Vector,
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: batch upsert %d objects: %w", len(vs), err)
	}

	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("weaviate: batch upsert: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]retrieval.RetrievedUnit, error) {
	fields := []graphql.Field{
		{Name: "text"},
		{Name: "sourceId"},
		{Name: "sequenceIndex"},
		{Name: "kind"},
		{Name: "sourceLength"},
		{Name: "position"},
		{Name: "totalUnits"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: search: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: graphql error: %s", res.Errors[0].Message)
	}

	var results []retrieval.RetrievedUnit
	data, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := data[vector.ClassName].([]interface{})
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		u := retrieval.RetrievedUnit{
			Text: stringProp(props, "text"),
			Metadata: retrieval.UnitMetadata{
				SourceID:      stringProp(props, "sourceId"),
				SequenceIndex: intProp(props, "sequenceIndex"),
				Kind:          text.UnitKind(stringProp(props, "kind")),
				SourceLength:  intProp(props, "sourceLength"),
				Position:      intProp(props, "position"),
				TotalUnits:    intProp(props, "totalUnits"),
			},
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			u.ID = stringProp(additional, "id")
			u.Score = float32(1 - floatProp(additional, "distance"))
		}
		results = append(results, u)
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.client.Data().Deleter().
		WithClassName(vector.ClassName).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceId"}).
			WithOperator(filters.Equal).
			WithValueString(sourceID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: delete source %s: %w", sourceID, err)
	}
	return nil
}

func stringProp(m map[string]interface{}, k string) string {
	s, _ := m[k].(string)
	return s
}

func intProp(m map[string]interface{}, k string) int {
	return int(floatProp(m, k))
}

// floatProp accepts numbers as JSON floats or strings; additional fields
// arrive as either depending on server version.
func floatProp(m map[string]interface{}, k string) float64 {
	switch v := m[k].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
