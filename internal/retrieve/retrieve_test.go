package retrieve

import (
	"context"
	"testing"
	"time"

	"docgraph/internal/docstore"
	"docgraph/internal/embedder"
	"docgraph/internal/model"
	"docgraph/internal/persistence/databases"
	"docgraph/internal/vectorstore"
)

func seedVectorStore(t *testing.T, vs *vectorstore.Writer, docs *docstore.MemoryStore, embed embedder.Embedder) {
	t.Helper()
	texts := map[string]string{
		"c1": "nginx depends on postgres for session storage",
		"c2": "the weather today is mild with scattered clouds",
	}
	vecs, err := embed.EmbedBatch(context.Background(), []string{texts["c1"], texts["c2"]})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}

	embeddings := []vectorstore.ChunkEmbedding{
		{Chunk: model.Chunk{ChunkID: "c1", DocID: "doc-1", Ordinal: 0, Text: texts["c1"]}, Vector: vecs[0], SourceType: model.SourceGitHub, IngestedAt: time.Now(), Namespace: "default"},
		{Chunk: model.Chunk{ChunkID: "c2", DocID: "doc-2", Ordinal: 0, Text: texts["c2"]}, Vector: vecs[1], SourceType: model.SourceWeb, IngestedAt: time.Now(), Namespace: "default"},
	}
	if err := vs.UpsertBatch(context.Background(), embeddings); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := docs.InsertChunks(context.Background(), "doc-1", []model.Chunk{embeddings[0].Chunk}); err != nil {
		t.Fatalf("InsertChunks doc-1: %v", err)
	}
	if err := docs.InsertChunks(context.Background(), "doc-2", []model.Chunk{embeddings[1].Chunk}); err != nil {
		t.Fatalf("InsertChunks doc-2: %v", err)
	}
}

func TestRetrieveReturnsBestMatchingChunkFirst(t *testing.T) {
	embed := embedder.NewDeterministic(32, true, 7)
	vs := vectorstore.New(databases.NewMemoryVector())
	docs := docstore.NewMemoryStore()
	seedVectorStore(t, vs, docs, embed)

	graph := databases.NewMemoryGraph()
	_ = graph.UpsertEdge(context.Background(), databases.EdgeWrite{TypeTag: "MENTIONS", SrcRef: "doc-1", DstRef: "nginx"})
	_ = graph.UpsertEdge(context.Background(), databases.EdgeWrite{TypeTag: "DEPENDS_ON", SrcRef: "nginx", DstRef: "postgres"})

	r := New(embed, vs, graph, docs, nil, nil)
	bundle, err := r.Retrieve(context.Background(), "nginx depends on postgres for session storage", Options{TopK: 5, RerankTopN: 2})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(bundle.OrderedChunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	if bundle.OrderedChunks[0].ChunkID != "c1" {
		t.Fatalf("expected c1 to rank first, got %+v", bundle.OrderedChunks)
	}
	if bundle.OrderedChunks[0].Text == "" {
		t.Fatalf("expected hydrated chunk text")
	}

	found := false
	for _, n := range bundle.Subgraph.Nodes {
		if n == "nginx" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected graph expansion to surface nginx from doc-1's MENTIONS edge, got %+v", bundle.Subgraph.Nodes)
	}
}

func TestRetrieveFiltersBySourceType(t *testing.T) {
	embed := embedder.NewDeterministic(32, true, 7)
	vs := vectorstore.New(databases.NewMemoryVector())
	docs := docstore.NewMemoryStore()
	seedVectorStore(t, vs, docs, embed)

	r := New(embed, vs, nil, docs, nil, nil)
	bundle, err := r.Retrieve(context.Background(), "nginx depends on postgres for session storage", Options{
		TopK: 5, RerankTopN: 5, SourceTypes: []model.SourceType{model.SourceWeb},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, c := range bundle.OrderedChunks {
		if c.ChunkID == "c1" {
			t.Fatalf("expected github chunk c1 to be filtered out, got %+v", bundle.OrderedChunks)
		}
	}
}
