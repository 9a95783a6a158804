package databases

import (
	"context"
	"testing"

	"docgraph/internal/config"
)

func TestMemoryVector_UpsertAndQuery(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	// 2D vectors for simplicity
	_ = v.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"label": "A"})
	_ = v.Upsert(ctx, "b", []float32{0, 1}, nil)
	_ = v.Upsert(ctx, "c", []float32{1, 1}, nil)
	q := []float32{0.9, 0.1}
	res, err := v.SimilaritySearch(ctx, q, 2, nil)
	if err != nil {
		t.Fatalf("sim search error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].ID != "a" {
		t.Fatalf("expected 'a' to be nearest, got %q", res[0].ID)
	}
}

func TestMemoryGraph_Basics(t *testing.T) {
	t.Parallel()
	g := NewMemoryGraph()
	ctx := context.Background()
	_ = g.UpsertNode(ctx, Node{TypeTag: "Person", NaturalKey: "n1", Props: map[string]any{"name": "Alice"}})
	_ = g.UpsertNode(ctx, Node{TypeTag: "Person", NaturalKey: "n2", Props: map[string]any{"name": "Bob"}})
	_ = g.UpsertEdge(ctx, EdgeWrite{TypeTag: "KNOWS", SrcRef: "n1", DstRef: "n2", SourceDocID: "doc1", ExtractorVersion: "v1", Props: map[string]any{"since": 2020}})
	neigh, err := g.Neighbors(ctx, "n1", "KNOWS", 0)
	if err != nil {
		t.Fatalf("neighbors error: %v", err)
	}
	if len(neigh) != 1 || neigh[0] != "n2" {
		t.Fatalf("unexpected neighbors: %#v", neigh)
	}
	if n, ok := g.GetNode(ctx, "Person", "n1"); !ok || n.Props["name"] != "Alice" {
		t.Fatalf("unexpected node: %#v exists=%v", n, ok)
	}
	if exists, _ := g.NodeExists(ctx, "", "n1"); !exists {
		t.Fatal("wildcard NodeExists missed n1")
	}
	if exists, _ := g.NodeExists(ctx, "Place", "n1"); exists {
		t.Fatal("NodeExists matched the wrong type")
	}
}

func TestMemoryGraph_EdgeUpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	g := NewMemoryGraph()
	ctx := context.Background()
	e := EdgeWrite{TypeTag: "DEPENDS_ON", SrcRef: "api", DstRef: "db", SourceDocID: "doc1", ExtractorVersion: "v1", Confidence: 1.0}
	_ = g.UpsertEdge(ctx, e)
	_ = g.UpsertEdge(ctx, e)
	neigh, _ := g.Neighbors(ctx, "api", "DEPENDS_ON", 0)
	if len(neigh) != 1 {
		t.Fatalf("expected exactly one edge after duplicate upsert, got %d", len(neigh))
	}
}

func TestMemoryGraph_DeleteEdgesBySourceDoc(t *testing.T) {
	t.Parallel()
	g := NewMemoryGraph()
	ctx := context.Background()
	_ = g.UpsertEdge(ctx, EdgeWrite{TypeTag: "DEPENDS_ON", SrcRef: "api", DstRef: "db", SourceDocID: "doc1", ExtractorVersion: "v1"})
	_ = g.UpsertEdge(ctx, EdgeWrite{TypeTag: "DEPENDS_ON", SrcRef: "api", DstRef: "cache", SourceDocID: "doc2", ExtractorVersion: "v1"})
	n, err := g.DeleteEdgesBySourceDoc(ctx, "doc1", "v1")
	if err != nil {
		t.Fatalf("DeleteEdgesBySourceDoc error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 edge removed, got %d", n)
	}
	neigh, _ := g.Neighbors(ctx, "api", "DEPENDS_ON", 0)
	if len(neigh) != 1 || neigh[0] != "cache" {
		t.Fatalf("expected only the doc2 edge to remain, got %#v", neigh)
	}
}

func TestFactory_DefaultsAndNone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Defaults should create memory backends
	mgr, err := NewManager(ctx, config.DBConfig{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if mgr.Vector == nil || mgr.Graph == nil {
		t.Fatalf("expected non-nil backends by default")
	}
	// None should create no-op backends
	mgr, err = NewManager(ctx, config.DBConfig{Vector: config.VectorConfig{Backend: "none"}, Graph: config.GraphConfig{Backend: "none"}})
	if err != nil {
		t.Fatalf("NewManager error (none): %v", err)
	}
	// Calls should not error
	_ = mgr.Vector.Upsert(ctx, "x", []float32{1}, nil)
	_, _ = mgr.Vector.SimilaritySearch(ctx, []float32{1}, 1, nil)
	_ = mgr.Graph.UpsertNode(ctx, Node{TypeTag: "Noop", NaturalKey: "n"})
}
