package graphstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"docgraph/internal/model"
	"docgraph/internal/persistence/databases"
)

func edge(typeTag, src, dst, docID, version string, confidence float64) model.EdgeRecord {
	return model.EdgeRecord{
		EdgeHeader: model.EdgeHeader{
			TypeTag:          typeTag,
			SrcRef:           src,
			DstRef:           dst,
			SourceDocID:      docID,
			ExtractorVersion: version,
			Confidence:       confidence,
			Tier:             model.TierA,
			CreatedAt:        time.Unix(1000, 0),
			SourceTimestamp:  time.Unix(1000, 0),
		},
	}
}

func node(typeTag, key string) model.NodeRecord {
	return model.NodeRecord{TypeTag: typeTag, NaturalKey: key, Props: map[string]any{}}
}

func TestApplyInsertsStubForDanglingEdge(t *testing.T) {
	db := databases.NewMemoryGraph()
	w := New(db)

	packet := model.TriplePacket{
		Nodes: []model.NodeRecord{node("Service", "service:api")},
		Edges: []model.EdgeRecord{edge("DEPENDS_ON", "service:api", "service:db", "doc1", "1.0.0", 1.0)},
	}
	q, err := w.Apply(context.Background(), packet)
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 0 {
		t.Fatalf("unexpected quarantine: %+v", q)
	}

	stub, ok := db.GetNode(context.Background(), databases.StubTypeTag, "service:db")
	if !ok {
		t.Fatal("dangling edge endpoint was not stubbed")
	}
	if stub.Status != "unresolved" {
		t.Fatalf("stub status = %q, want unresolved", stub.Status)
	}

	// Writing the full node later supersedes the stub.
	_, err = w.Apply(context.Background(), model.TriplePacket{
		Nodes: []model.NodeRecord{node("Service", "service:db")},
	})
	if err != nil {
		t.Fatal(err)
	}
	full, ok := db.GetNode(context.Background(), "Service", "service:db")
	if !ok || full.Status != "" {
		t.Fatalf("full write did not supersede stub, ok=%v status=%q", ok, full.Status)
	}
	if exists, _ := db.NodeExists(context.Background(), databases.StubTypeTag, "service:db"); exists {
		t.Fatal("stub row survived the full write")
	}
}

func TestApplyKeepsTypesSharingANaturalKeyDistinct(t *testing.T) {
	db := databases.NewMemoryGraph()
	w := New(db)
	ctx := context.Background()

	// A compose service emits both a Container and a Service node under the
	// same natural key; neither may clobber the other.
	packet := model.TriplePacket{
		Nodes: []model.NodeRecord{
			{TypeTag: "Container", NaturalKey: "api", Props: map[string]any{"image": "nginx:1.27"}},
			{TypeTag: "Service", NaturalKey: "api", Props: map[string]any{"name": "api"}},
		},
	}
	if _, err := w.Apply(ctx, packet); err != nil {
		t.Fatal(err)
	}

	container, ok := db.GetNode(ctx, "Container", "api")
	if !ok || container.Props["image"] != "nginx:1.27" {
		t.Fatalf("container node lost: ok=%v props=%v", ok, container.Props)
	}
	service, ok := db.GetNode(ctx, "Service", "api")
	if !ok || service.Props["name"] != "api" {
		t.Fatalf("service node lost: ok=%v props=%v", ok, service.Props)
	}
}

func TestApplyTwiceYieldsSameState(t *testing.T) {
	db := databases.NewMemoryGraph()
	w := New(db)
	ctx := context.Background()

	packet := model.TriplePacket{
		Nodes: []model.NodeRecord{node("Service", "service:api"), node("Service", "service:db")},
		Edges: []model.EdgeRecord{edge("DEPENDS_ON", "service:api", "service:db", "doc1", "1.0.0", 1.0)},
	}
	if _, err := w.Apply(ctx, packet); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Apply(ctx, packet); err != nil {
		t.Fatal(err)
	}

	neighbors, err := db.Neighbors(ctx, "service:api", "DEPENDS_ON", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 1 || neighbors[0] != "service:db" {
		t.Fatalf("double apply duplicated edges: %v", neighbors)
	}
}

func TestApplyDropsEdgesBelowAcceptanceThreshold(t *testing.T) {
	db := databases.NewMemoryGraph()
	w := New(db)
	ctx := context.Background()

	packet := model.TriplePacket{
		Nodes: []model.NodeRecord{node("Service", "a"), node("Service", "b")},
		Edges: []model.EdgeRecord{
			edge("DEPENDS_ON", "a", "b", "doc1", "1.0.0", 0.65),
			edge("ROUTES_TO", "a", "b", "doc1", "1.0.0", 0.71),
		},
	}
	if _, err := w.Apply(ctx, packet); err != nil {
		t.Fatal(err)
	}

	if got, _ := db.Neighbors(ctx, "a", "DEPENDS_ON", 0); len(got) != 0 {
		t.Fatalf("sub-threshold edge persisted: %v", got)
	}
	if got, _ := db.Neighbors(ctx, "a", "ROUTES_TO", 0); len(got) != 1 {
		t.Fatalf("above-threshold edge dropped: %v", got)
	}
}

func TestPurgeRemovesOnlyKeyedEdges(t *testing.T) {
	db := databases.NewMemoryGraph()
	w := New(db)
	ctx := context.Background()

	packet := model.TriplePacket{
		Nodes: []model.NodeRecord{node("Service", "a"), node("Service", "b")},
		Edges: []model.EdgeRecord{
			edge("DEPENDS_ON", "a", "b", "doc1", "1.0.0", 1.0),
			edge("DEPENDS_ON", "a", "b", "doc2", "1.0.0", 1.0),
			edge("DEPENDS_ON", "a", "b", "doc1", "2.0.0", 1.0),
		},
	}
	if _, err := w.Apply(ctx, packet); err != nil {
		t.Fatal(err)
	}

	removed, err := w.Purge(ctx, "doc1", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed %d edges, want exactly 1", removed)
	}
	// doc2's edge and doc1's newer-version edge survive.
	if got, _ := db.Neighbors(ctx, "a", "DEPENDS_ON", 0); len(got) != 2 {
		t.Fatalf("purge removed collaterals: %v", got)
	}
}

// failingGraph rejects a fixed natural key so batch splitting has a single
// poisoned row to isolate.
type failingGraph struct {
	databases.GraphDB
	badKey string
}

func (f *failingGraph) UpsertNode(ctx context.Context, n databases.Node) error {
	if n.NaturalKey == f.badKey {
		return errors.New("constraint violation")
	}
	return f.GraphDB.UpsertNode(ctx, n)
}

func TestApplyQuarantinesPersistentlyFailingRow(t *testing.T) {
	db := &failingGraph{GraphDB: databases.NewMemoryGraph(), badKey: "bad"}
	w := New(db)
	ctx := context.Background()

	packet := model.TriplePacket{
		Nodes: []model.NodeRecord{node("Service", "a"), node("Service", "bad"), node("Service", "b")},
	}
	q, err := w.Apply(ctx, packet)
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 1 || q[0].Kind != "node" || q[0].Node.NaturalKey != "bad" {
		t.Fatalf("quarantine = %+v, want exactly the poisoned row", q)
	}
	// The rest of the batch committed.
	for _, key := range []string{"a", "b"} {
		if ok, _ := db.NodeExists(ctx, "Service", key); !ok {
			t.Fatalf("healthy row %q did not commit", key)
		}
	}
}
