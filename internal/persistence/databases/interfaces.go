package databases

import (
	"context"
	"time"
)

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // Higher is closer by default
	Metadata map[string]string
}

// VectorStore defines the minimum interface for a pluggable vector store.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}

// StubTypeTag is the type tag of placeholder nodes inserted for dangling
// edge endpoints. A later full write of any type with the same natural key
// supersedes the stub.
const StubTypeTag = "Unresolved"

// Node is the storage-layer representation of a graph node, addressed by
// (type_tag, natural_key) rather than a store-assigned identifier.
type Node struct {
	TypeTag    string
	NaturalKey string
	Props      map[string]any
	Status     string // "" (resolved) or "unresolved" (stub)
}

// EdgeWrite is the storage-layer representation of a graph edge write,
// carrying the full composite uniqueness key from the data model:
// (type_tag, src_ref, dst_ref, source_doc_id, extractor_version).
type EdgeWrite struct {
	TypeTag          string
	SrcRef           string
	DstRef           string
	SourceDocID      string
	ExtractorVersion string
	Tier             string
	Confidence       float64
	CreatedAt        time.Time
	SourceTimestamp  time.Time
	Props            map[string]any
}

// GraphDB defines a portable interface for idempotent graph operations.
// UpsertNode MERGEs by (TypeTag, NaturalKey) — node uniqueness is per type,
// so a Container and a Service may share a natural key without clobbering
// each other; UpsertEdge MERGEs by the composite edge key. Both are safe to
// call twice with identical input.
//
// NodeExists treats an empty typeTag as a wildcard (any type with that
// natural key), mirroring Neighbors' empty-edgeTag convention; edge
// endpoint refs carry only a natural key, so dangling-edge checks need the
// type-agnostic form.
type GraphDB interface {
	UpsertNode(ctx context.Context, n Node) error
	UpsertEdge(ctx context.Context, e EdgeWrite) error
	NodeExists(ctx context.Context, typeTag, naturalKey string) (bool, error)
	GetNode(ctx context.Context, typeTag, naturalKey string) (Node, bool)
	Neighbors(ctx context.Context, naturalKey string, edgeTag string, limit int) ([]string, error)
	// DeleteEdgesBySourceDoc removes exactly the edges keyed to
	// (sourceDocID, extractorVersion) and returns how many were removed.
	DeleteEdgesBySourceDoc(ctx context.Context, sourceDocID, extractorVersion string) (int, error)
}

// Manager holds concrete database backends resolved from configuration.
type Manager struct {
	Vector VectorStore
	Graph  GraphDB
}

// Close attempts to close any underlying pools. It's a no-op for memory backends.
func (m Manager) Close() {
	if c, ok := any(m.Vector).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Graph).(interface{ Close() }); ok {
		c.Close()
	}
}
