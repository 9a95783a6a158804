package vectorstore

import (
	"context"
	"testing"
	"time"

	"docgraph/internal/model"
	"docgraph/internal/persistence/databases"
)

func TestUpsertBatchWritesFrozenPayload(t *testing.T) {
	backend := databases.NewMemoryVector()
	w := New(backend, WithBatchSize(1))

	ingested := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	embeddings := []ChunkEmbedding{
		{
			Chunk:      model.Chunk{ChunkID: "c1", DocID: "doc-1", Ordinal: 0, TokenCount: 128, TokenSpan: [2]int{0, 128}},
			Vector:     []float32{1, 0, 0},
			SourceType: model.SourceGitHub,
			IngestedAt: ingested,
			Namespace:  "default",
			Tags:       []string{"infra", "compose"},
		},
		{
			Chunk:      model.Chunk{ChunkID: "c2", DocID: "doc-1", Ordinal: 1, TokenCount: 256, TokenSpan: [2]int{128, 384}},
			Vector:     []float32{0, 1, 0},
			SourceType: model.SourceGitHub,
			IngestedAt: ingested,
			Namespace:  "default",
		},
	}

	if err := w.UpsertBatch(context.Background(), embeddings); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	results, err := w.Search(context.Background(), []float32{1, 0, 0}, 5, map[string]string{"doc_id": "doc-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results for doc-1 filter, got %d", len(results))
	}
	if results[0].Metadata["namespace"] != "default" || results[0].Metadata["source_type"] != "github" {
		t.Fatalf("unexpected payload, got %+v", results[0].Metadata)
	}
	if results[0].Metadata["token_span"] != "[0,128]" {
		t.Fatalf("token_span = %q, want [0,128]", results[0].Metadata["token_span"])
	}
	if results[0].Metadata["tags"] != "infra,compose" {
		t.Fatalf("tags = %q, want infra,compose", results[0].Metadata["tags"])
	}
}

func TestUpsertBatchSucceedsAgainstMemoryBackend(t *testing.T) {
	backend := databases.NewMemoryVector()
	w := New(backend)
	embeddings := []ChunkEmbedding{
		{Chunk: model.Chunk{ChunkID: "c1", DocID: "doc-1"}, Vector: []float32{1}},
	}
	if err := w.UpsertBatch(context.Background(), embeddings); err != nil {
		t.Fatalf("expected success against memory backend, got %v", err)
	}
}

func TestDeleteDocumentRemovesAllChunks(t *testing.T) {
	backend := databases.NewMemoryVector()
	w := New(backend)
	ctx := context.Background()
	_ = w.UpsertBatch(ctx, []ChunkEmbedding{
		{Chunk: model.Chunk{ChunkID: "c1", DocID: "doc-1"}, Vector: []float32{1, 0}},
		{Chunk: model.Chunk{ChunkID: "c2", DocID: "doc-1"}, Vector: []float32{0, 1}},
	})
	if err := w.DeleteDocument(ctx, []string{"c1", "c2"}); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	results, err := w.Search(ctx, []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %+v", results)
	}
}
