// Package graphstore is the batched, idempotent graph-write layer: it
// groups nodes and edges by type_tag, applies them in bounded batches,
// inserts stub nodes for dangling edge references, and retries a batch that
// trips a storage constraint by splitting it in two.
package graphstore

import (
	"context"
	"fmt"

	"docgraph/internal/model"
	"docgraph/internal/obs"
	"docgraph/internal/persistence/databases"
)

const defaultBatchSize = 2000

const defaultMinConfidence = 0.70

// Writer applies TriplePackets to a GraphDB backend.
type Writer struct {
	db            databases.GraphDB
	batchSize     int
	splitDepth    int
	minConfidence float64
	metrics       obs.Metrics
}

// Option configures a Writer.
type Option func(*Writer)

// WithBatchSize overrides the default 2000-row batch size.
func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithSplitDepth overrides the default max binary-split retry depth (3).
func WithSplitDepth(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.splitDepth = n
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithAcceptanceThreshold overrides the default 0.70 confidence floor
// below which an edge is dropped instead of persisted.
func WithAcceptanceThreshold(f float64) Option {
	return func(w *Writer) {
		if f > 0 {
			w.minConfidence = f
		}
	}
}

// New constructs a Writer over db.
func New(db databases.GraphDB, opts ...Option) *Writer {
	w := &Writer{db: db, batchSize: defaultBatchSize, splitDepth: 3, minConfidence: defaultMinConfidence, metrics: obs.NoopMetrics{}}
	for _, o := range opts {
		o(w)
	}
	return w
}

// QuarantinedRow is a single node or edge that failed even after the
// binary-split retry budget was exhausted; it is the caller's
// responsibility to route this to the DLQ with cause E_GRAPH_WRITE.
type QuarantinedRow struct {
	Kind string // "node" or "edge"
	Node *model.NodeRecord
	Edge *model.EdgeRecord
	Err  error
}

// Apply writes a packet's nodes then edges, batched by type_tag. Dangling
// edges (referencing a node not present in this packet or the store) get a
// stub node inserted first. Batches that trip a constraint are retried
// split in two, up to the configured depth; rows still failing at that
// depth are returned as quarantined rather than aborting the whole packet.
func (w *Writer) Apply(ctx context.Context, packet model.TriplePacket) ([]QuarantinedRow, error) {
	var quarantined []QuarantinedRow

	// The writer is the last gate before persistence: edges below the
	// acceptance floor are dropped here even if an upstream tier forgot to.
	kept := packet.Edges[:0:0]
	for _, e := range packet.Edges {
		if e.Confidence < w.minConfidence {
			w.metrics.IncCounter("graph_writer_edges_below_threshold_total", map[string]string{})
			continue
		}
		kept = append(kept, e)
	}
	packet.Edges = kept

	nodesByType := groupNodesByType(packet.Nodes)
	for _, typeTag := range sortedKeys(nodesByType) {
		rows := nodesByType[typeTag]
		for _, batch := range chunkNodes(rows, w.batchSize) {
			q := w.applyNodeBatch(ctx, batch, w.splitDepth)
			quarantined = append(quarantined, q...)
		}
	}

	if err := w.ensureEdgeEndpoints(ctx, packet); err != nil {
		return quarantined, fmt.Errorf("graphstore: stub reconciliation: %w", err)
	}

	edgesByType := groupEdgesByType(packet.Edges)
	for _, typeTag := range sortedKeysEdges(edgesByType) {
		rows := edgesByType[typeTag]
		for _, batch := range chunkEdges(rows, w.batchSize) {
			q := w.applyEdgeBatch(ctx, batch, w.splitDepth)
			quarantined = append(quarantined, q...)
		}
	}

	w.metrics.IncCounter("graph_writer_batches_applied_total", map[string]string{})
	if len(quarantined) > 0 {
		w.metrics.IncCounter("graph_writer_quarantined_rows_total", map[string]string{})
	}
	return quarantined, nil
}

// ensureEdgeEndpoints inserts status='unresolved' stub nodes for any edge
// endpoint not already present in the packet's own node set or the store.
func (w *Writer) ensureEdgeEndpoints(ctx context.Context, packet model.TriplePacket) error {
	present := make(map[string]bool, len(packet.Nodes))
	for _, n := range packet.Nodes {
		present[n.NaturalKey] = true
	}
	seen := make(map[string]bool)
	for _, e := range packet.Edges {
		for _, ref := range []string{e.SrcRef, e.DstRef} {
			if present[ref] || seen[ref] {
				continue
			}
			seen[ref] = true
			// Edge refs carry only a natural key, so the existence check is
			// type-agnostic: any node with this key satisfies the edge.
			exists, err := w.db.NodeExists(ctx, "", ref)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := w.db.UpsertNode(ctx, databases.Node{
				TypeTag:    databases.StubTypeTag,
				NaturalKey: ref,
				Status:     "unresolved",
				Props:      map[string]any{},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) applyNodeBatch(ctx context.Context, batch []model.NodeRecord, depth int) []QuarantinedRow {
	ok := true
	for _, n := range batch {
		if err := w.db.UpsertNode(ctx, databases.Node{
			TypeTag:    n.TypeTag,
			NaturalKey: n.NaturalKey,
			Props:      n.Props,
			Status:     n.Status,
		}); err != nil {
			ok = false
			break
		}
	}
	if ok {
		return nil
	}
	if depth <= 0 || len(batch) <= 1 {
		var q []QuarantinedRow
		for i := range batch {
			n := batch[i]
			if err := w.db.UpsertNode(ctx, databases.Node{TypeTag: n.TypeTag, NaturalKey: n.NaturalKey, Props: n.Props, Status: n.Status}); err != nil {
				q = append(q, QuarantinedRow{Kind: "node", Node: &n, Err: err})
			}
		}
		return q
	}
	mid := len(batch) / 2
	var q []QuarantinedRow
	q = append(q, w.applyNodeBatch(ctx, batch[:mid], depth-1)...)
	q = append(q, w.applyNodeBatch(ctx, batch[mid:], depth-1)...)
	return q
}

func (w *Writer) applyEdgeBatch(ctx context.Context, batch []model.EdgeRecord, depth int) []QuarantinedRow {
	ok := true
	for _, e := range batch {
		if err := w.db.UpsertEdge(ctx, toEdgeWrite(e)); err != nil {
			ok = false
			break
		}
	}
	if ok {
		return nil
	}
	if depth <= 0 || len(batch) <= 1 {
		var q []QuarantinedRow
		for i := range batch {
			e := batch[i]
			if err := w.db.UpsertEdge(ctx, toEdgeWrite(e)); err != nil {
				q = append(q, QuarantinedRow{Kind: "edge", Edge: &e, Err: err})
			}
		}
		return q
	}
	mid := len(batch) / 2
	var q []QuarantinedRow
	q = append(q, w.applyEdgeBatch(ctx, batch[:mid], depth-1)...)
	q = append(q, w.applyEdgeBatch(ctx, batch[mid:], depth-1)...)
	return q
}

func toEdgeWrite(e model.EdgeRecord) databases.EdgeWrite {
	return databases.EdgeWrite{
		TypeTag:          e.TypeTag,
		SrcRef:           e.SrcRef,
		DstRef:           e.DstRef,
		SourceDocID:      e.SourceDocID,
		ExtractorVersion: e.ExtractorVersion,
		Tier:             string(e.Tier),
		Confidence:       e.Confidence,
		CreatedAt:        e.CreatedAt,
		SourceTimestamp:  e.SourceTimestamp,
		Props:            e.Props,
	}
}

// Purge implements the admin purge operation: it removes exactly the
// edges keyed to (docID, extractorVersion), no collaterals.
func (w *Writer) Purge(ctx context.Context, docID, extractorVersion string) (int, error) {
	return w.db.DeleteEdgesBySourceDoc(ctx, docID, extractorVersion)
}
