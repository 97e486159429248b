package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"textbook-rag/apps/backend/internal/adapter/gemini"
)

func newFakeGemini(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":embedContent"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": map[string]interface{}{"values": []float32{0.1, 0.2, 0.3}},
			})
		case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"):
			var req struct {
				Requests []json.RawMessage `json:"requests"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			embeddings := make([]map[string]interface{}, len(req.Requests))
			for i := range embeddings {
				embeddings[i] = map[string]interface{}{"values": []float32{float32(i), 1}}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []map[string]interface{}{{"text": "Plants make sugar "}, {"text": "from light."}},
					},
				}},
				"usageMetadata": map[string]interface{}{"promptTokenCount": 42, "candidatesTokenCount": 7},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestEmbedder(t *testing.T) {
	ts := newFakeGemini(t)
	ctx := context.Background()

	client, err := gemini.NewClient(ctx, "test-key", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer client.Close()

	embedder := gemini.NewEmbedder(client, "", rate.NewLimiter(rate.Inf, 1))

	t.Run("Embed", func(t *testing.T) {
		vec, err := embedder.Embed(ctx, "hello world")
		require.NoError(t, err)
		if assert.Len(t, vec, 3) {
			assert.Equal(t, float32(0.1), vec[0])
		}
	})

	t.Run("EmbedMany", func(t *testing.T) {
		vecs, err := embedder.EmbedMany(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, float32(2), vecs[2][0])
	})

	t.Run("EmbedMany Empty", func(t *testing.T) {
		vecs, err := embedder.EmbedMany(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, vecs)
	})

	t.Run("Canceled Context Hits Limiter", func(t *testing.T) {
		limited := gemini.NewEmbedder(client, "", rate.NewLimiter(rate.Limit(0.001), 1))
		_, err := limited.Embed(ctx, "first")
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = limited.Embed(cctx, "second")
		assert.Error(t, err)
	})
}

func TestEmbedder_UpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
	}))
	defer ts.Close()

	ctx := context.Background()
	client, err := gemini.NewClient(ctx, "test-key", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer client.Close()

	_, err = gemini.NewEmbedder(client, "", nil).Embed(ctx, "hello")
	assert.Error(t, err)
}

func TestSynthesizer_Complete(t *testing.T) {
	ts := newFakeGemini(t)
	ctx := context.Background()

	client, err := gemini.NewClient(ctx, "test-key", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer client.Close()

	synth := gemini.NewSynthesizer(client, "")
	c, err := synth.Complete(ctx, "Only use the context.", "CONTEXT: ...", 256)
	require.NoError(t, err)

	assert.Equal(t, "Plants make sugar from light.", c.Text)
	assert.Equal(t, gemini.DefaultChatModel, c.Model)
	assert.Equal(t, 42, c.InputTokens)
	assert.Equal(t, 7, c.OutputTokens)
}
