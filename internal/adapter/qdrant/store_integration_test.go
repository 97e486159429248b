package qdrant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textbook-rag/apps/backend/internal/adapter/qdrant"
	"textbook-rag/apps/backend/internal/retrieval"
	"textbook-rag/apps/backend/internal/testutils"
	"textbook-rag/apps/backend/internal/text"
)

func TestQdrantStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	store, err := qdrant.New(s.QdrantAddr, "it_units")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx, 3))
	require.NoError(t, store.EnsureSchema(ctx, 3))

	a := retrieval.IndexedVector{
		ID: uuid.NewString(), Vector: []float32{1, 0, 0}, Text: "Atoms bond covalently.",
		Metadata: retrieval.UnitMetadata{SourceID: "chem-1", Kind: text.UnitWhole, Position: 1, TotalUnits: 2},
	}
	b := retrieval.IndexedVector{
		ID: uuid.NewString(), Vector: []float32{0, 1, 0}, Text: "Ions bond ionically.",
		Metadata: retrieval.UnitMetadata{SourceID: "chem-1", Kind: text.UnitWhole, Position: 2, TotalUnits: 2},
	}
	require.NoError(t, store.UpsertMany(ctx, []retrieval.IndexedVector{a, b}))

	res, err := store.Search(ctx, []float32{1, 0.1, 0}, retrieval.TopK)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, a.ID, res[0].ID)
	assert.Equal(t, a.Metadata, res[0].Metadata)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	require.NoError(t, store.Delete(ctx, a.ID))
	res, err = store.Search(ctx, []float32{1, 0.1, 0}, retrieval.TopK)
	require.NoError(t, err)
	require.Len(t, res, 1)

	require.NoError(t, store.DeleteBySource(ctx, "chem-1"))
	res, err = store.Search(ctx, []float32{1, 0.1, 0}, retrieval.TopK)
	require.NoError(t, err)
	assert.Empty(t, res)
}
