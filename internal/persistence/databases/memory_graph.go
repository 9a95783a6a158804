package databases

import (
	"context"
	"sort"
	"sync"
)

// memoryGraph is an in-memory GraphDB used by tests and the "memory" backend
// configuration. Nodes are keyed by (TypeTag, NaturalKey); edges are keyed
// by the full composite key so repeated writes MERGE instead of duplicating.
type memoryGraph struct {
	mu    sync.RWMutex
	nodes map[nodeKey]Node
	edges map[edgeCompositeKey]EdgeWrite
}

type nodeKey struct {
	typeTag, naturalKey string
}

type edgeCompositeKey struct {
	typeTag, srcRef, dstRef, sourceDocID, extractorVersion string
}

func NewMemoryGraph() GraphDB {
	return &memoryGraph{
		nodes: make(map[nodeKey]Node),
		edges: make(map[edgeCompositeKey]EdgeWrite),
	}
}

func (m *memoryGraph) UpsertNode(_ context.Context, n Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		cp[k] = v
	}
	n.Props = cp
	// A full write supersedes any stub previously inserted for a dangling
	// edge endpoint with the same natural key.
	if n.Status == "" {
		delete(m.nodes, nodeKey{StubTypeTag, n.NaturalKey})
	}
	m.nodes[nodeKey{n.TypeTag, n.NaturalKey}] = n
	return nil
}

func (m *memoryGraph) UpsertEdge(_ context.Context, e EdgeWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(e.Props))
	for k, v := range e.Props {
		cp[k] = v
	}
	e.Props = cp
	key := edgeCompositeKey{e.TypeTag, e.SrcRef, e.DstRef, e.SourceDocID, e.ExtractorVersion}
	// Conflicting writes on the same composite key keep the higher
	// confidence, latest source_timestamp winning ties, mirroring the
	// postgres backend's ON CONFLICT guard.
	if prev, ok := m.edges[key]; ok {
		if prev.Confidence > e.Confidence ||
			(prev.Confidence == e.Confidence && prev.SourceTimestamp.After(e.SourceTimestamp)) {
			return nil
		}
	}
	m.edges[key] = e
	return nil
}

func (m *memoryGraph) NodeExists(_ context.Context, typeTag, naturalKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if typeTag != "" {
		_, ok := m.nodes[nodeKey{typeTag, naturalKey}]
		return ok, nil
	}
	for k := range m.nodes {
		if k.naturalKey == naturalKey {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryGraph) GetNode(_ context.Context, typeTag, naturalKey string) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[nodeKey{typeTag, naturalKey}]
	return n, ok
}

func (m *memoryGraph) Neighbors(_ context.Context, naturalKey string, edgeTag string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.edges {
		if k.srcRef == naturalKey && (edgeTag == "" || k.typeTag == edgeTag) {
			out = append(out, k.dstRef)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryGraph) DeleteEdgesBySourceDoc(_ context.Context, sourceDocID, extractorVersion string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k := range m.edges {
		if k.sourceDocID == sourceDocID && k.extractorVersion == extractorVersion {
			delete(m.edges, k)
			removed++
		}
	}
	return removed, nil
}
