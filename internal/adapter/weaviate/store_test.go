package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "textbook-rag/apps/backend/internal/adapter/weaviate"
	"textbook-rag/apps/backend/internal/retrieval"
	"textbook-rag/apps/backend/internal/text"
	"textbook-rag/apps/backend/internal/vector"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) *weaviate.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return client
}

func TestStore_UpsertMany(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Objects []map[string]interface{} `json:"objects"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Objects, 1)
		assert.Equal(t, vector.ClassName, body.Objects[0]["class"])
		assert.Equal(t, "6a1f1a5e-7d8e-4b5c-9a3f-0c2d1e4f5a6b", body.Objects[0]["id"])
		props := body.Objects[0]["properties"].(map[string]interface{})
		assert.Equal(t, "Mitosis has four phases.", props["text"])
		assert.Equal(t, "bio-2", props["sourceId"])
		assert.Equal(t, "split", props["kind"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{{"id": body.Objects[0]["id"], "result": map[string]interface{}{}}})
	})

	store := adapter.NewStore(client)
	err := store.Upsert(context.Background(), retrieval.IndexedVector{
		ID:       "6a1f1a5e-7d8e-4b5c-9a3f-0c2d1e4f5a6b",
		Vector:   []float32{0.1, 0.2},
		Text:     "Mitosis has four phases.",
		Metadata: retrieval.UnitMetadata{SourceID: "bio-2", Kind: text.UnitSplit, Position: 3},
	})
	assert.NoError(t, err)
}

func TestStore_UpsertMany_ObjectErrors(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{{
			"result": map[string]interface{}{
				"errors": map[string]interface{}{
					"error": []map[string]interface{}{{"message": "vector dimension mismatch"}},
				},
			},
		}})
	})

	err := adapter.NewStore(client).Upsert(context.Background(), retrieval.IndexedVector{
		ID: "6a1f1a5e-7d8e-4b5c-9a3f-0c2d1e4f5a6b", Vector: []float32{1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector dimension mismatch")
}

func TestStore_Search(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		query := body["query"].(string)
		assert.Contains(t, query, vector.ClassName)
		assert.Contains(t, query, "nearVector")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					vector.ClassName: []interface{}{
						map[string]interface{}{
							"text": "Ribosomes build proteins.", "sourceId": "bio-5", "kind": "whole",
							"position": 2.0, "totalUnits": 4.0, "sequenceIndex": 1.0, "sourceLength": 25.0,
							"_additional": map[string]interface{}{"id": "u-1", "distance": 0.25},
						},
						map[string]interface{}{
							"text": "Lysosomes digest waste.", "sourceId": "bio-5",
							"_additional": map[string]interface{}{"id": "u-2", "distance": "0.5"},
						},
					},
				},
			},
		})
	})

	res, err := adapter.NewStore(client).Search(context.Background(), []float32{0.3, 0.4}, retrieval.TopK)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "u-1", res[0].ID)
	assert.Equal(t, float32(0.75), res[0].Score)
	assert.Equal(t, retrieval.UnitMetadata{
		SourceID: "bio-5", SequenceIndex: 1, Kind: text.UnitWhole, SourceLength: 25, Position: 2, TotalUnits: 4,
	}, res[0].Metadata)
	assert.Equal(t, float32(0.5), res[1].Score)
}

func TestStore_Search_GraphQLError(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "class not found"}},
		})
	})

	_, err := adapter.NewStore(client).Search(context.Background(), []float32{1}, retrieval.TopK)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")
}

func TestStore_Delete(t *testing.T) {
	var paths []string
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v1/batch/objects" {
			json.NewEncoder(w).Encode(map[string]interface{}{})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	store := adapter.NewStore(client)
	ctx := context.Background()
	require.NoError(t, store.DeleteMany(ctx, []string{"a", "b"}))
	require.NoError(t, store.DeleteBySource(ctx, "bio-5"))

	require.Len(t, paths, 3)
	assert.True(t, strings.HasSuffix(paths[0], "/a"))
	assert.True(t, strings.HasSuffix(paths[1], "/b"))
	assert.Equal(t, "/v1/batch/objects", paths[2])
}
