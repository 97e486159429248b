package vector_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"textbook-rag/apps/backend/internal/vector"
)

func newSchemaClient(t *testing.T, handler http.HandlerFunc) *vector.WeaviateSchema {
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
	return vector.NewWeaviateSchema(client)
}

func TestWeaviateSchema_ClassExists(t *testing.T) {
	t.Run("Exists", func(t *testing.T) {
		s := newSchemaClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/schema/"+vector.ClassName, r.URL.Path)
			json.NewEncoder(w).Encode(&models.Class{Class: vector.ClassName})
		})

		exists, err := s.ClassExists(context.Background(), vector.ClassName)
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newSchemaClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		exists, err := s.ClassExists(context.Background(), vector.ClassName)
		assert.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestWeaviateSchema_Ensure_CreatesClass(t *testing.T) {
	var created models.Class
	s := newSchemaClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/"+vector.ClassName:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(created)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, vector.ClassName, created.Class)
	assert.Equal(t, "none", created.Vectorizer)
}

func TestWeaviateSchema_AddProperty(t *testing.T) {
	s := newSchemaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/schema/"+vector.ClassName+"/properties", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(&models.Property{Name: "kind"})
	})

	err := s.AddProperty(context.Background(), vector.ClassName, &models.Property{Name: "kind", DataType: []string{"string"}})
	assert.NoError(t, err)
}
