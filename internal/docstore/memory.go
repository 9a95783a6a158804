package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docgraph/internal/model"
)

type docRow struct {
	doc   model.NormalizedDocument
	state model.ExtractionState
}

// MemoryStore is an in-process Interface implementation for tests and for
// single-node deployments without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]docRow
	chunks  map[string][]model.Chunk
	windows map[string][]model.Window
	events  map[string][]Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    map[string]docRow{},
		chunks:  map[string][]model.Chunk{},
		windows: map[string][]model.Window{},
		events:  map[string][]Event{},
	}
}

func (m *MemoryStore) UpsertDocument(_ context.Context, doc model.NormalizedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.docs[doc.DocID]; ok && existing.doc.ContentHash == doc.ContentHash {
		// Re-submitting the same content under the same doc_id is a no-op.
		return nil
	}
	m.docs[doc.DocID] = docRow{doc: doc, state: model.StatePending}
	return nil
}

func (m *MemoryStore) RecordIngestionJob(_ context.Context, docID string, _ model.SourceType, _ string) (string, error) {
	return uuid.NewString(), nil
}

func (m *MemoryStore) GetDocument(_ context.Context, docID string) (model.NormalizedDocument, model.ExtractionState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.docs[docID]
	if !ok {
		return model.NormalizedDocument{}, "", false, nil
	}
	return row.doc, row.state, true, nil
}

func (m *MemoryStore) SetState(_ context.Context, docID string, state model.ExtractionState, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.docs[docID]
	if !ok {
		return fmt.Errorf("docstore: unknown doc_id %q", docID)
	}
	if !model.ValidTransition(row.state, state) {
		return fmt.Errorf("docstore: illegal transition %s -> %s for %q", row.state, state, docID)
	}
	row.state = state
	m.docs[docID] = row
	m.events[docID] = append(m.events[docID], Event{DocID: docID, State: state, Detail: detail, OccurredAt: time.Now()})
	return nil
}

func (m *MemoryStore) ListByState(_ context.Context, state model.ExtractionState, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, row := range m.docs {
		if row.state == state {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.docs[out[i]].doc.IngestedAt.Before(m.docs[out[j]].doc.IngestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ReprocessSince(_ context.Context, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for id, row := range m.docs {
		if !row.doc.IngestedAt.Before(cutoff) {
			row.state = model.StatePending
			m.docs[id] = row
			n++
		}
	}
	return n, nil
}

// ReprocessDocument is the explicit single-document reset: it returns the
// document to pending regardless of current state, the one path allowed to
// move backward.
func (m *MemoryStore) ReprocessDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.docs[docID]
	if !ok {
		return fmt.Errorf("docstore: unknown doc_id %q", docID)
	}
	row.state = model.StatePending
	m.docs[docID] = row
	m.events[docID] = append(m.events[docID], Event{DocID: docID, State: model.StatePending, Detail: "reprocess", OccurredAt: time.Now()})
	return nil
}

func (m *MemoryStore) InsertChunks(_ context.Context, docID string, chunks []model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.Chunk, len(chunks))
	copy(cp, chunks)
	m.chunks[docID] = cp
	return nil
}

func (m *MemoryStore) ListChunks(_ context.Context, docID string) ([]model.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Chunk, len(m.chunks[docID]))
	copy(out, m.chunks[docID])
	return out, nil
}

func (m *MemoryStore) SaveWindows(_ context.Context, windows []model.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range windows {
		existing := m.windows[w.DocID]
		replaced := false
		for i, e := range existing {
			if e.Ordinal == w.Ordinal {
				existing[i] = w
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, w)
		}
		m.windows[w.DocID] = existing
	}
	return nil
}

func (m *MemoryStore) ListWindows(_ context.Context, docID string) ([]model.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Window, len(m.windows[docID]))
	copy(out, m.windows[docID])
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (m *MemoryStore) ListEvents(_ context.Context, docID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events[docID]))
	copy(out, m.events[docID])
	return out, nil
}

func (m *MemoryStore) StateCounts(_ context.Context) (map[model.ExtractionState]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[model.ExtractionState]int{}
	for _, row := range m.docs {
		out[row.state]++
	}
	return out, nil
}

func (m *MemoryStore) PurgeDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docID)
	delete(m.chunks, docID)
	delete(m.windows, docID)
	delete(m.events, docID)
	return nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, filter DocFilter) ([]DocumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []DocumentInfo
	for _, row := range m.docs {
		if filter.SourceType != "" && row.doc.SourceType != filter.SourceType {
			continue
		}
		if filter.State != "" && row.state != filter.State {
			continue
		}
		all = append(all, DocumentInfo{
			DocID:      row.doc.DocID,
			SourceType: row.doc.SourceType,
			SourceURL:  row.doc.SourceURL,
			State:      row.state,
			IngestedAt: row.doc.IngestedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].IngestedAt.Equal(all[j].IngestedAt) {
			return all[i].IngestedAt.Before(all[j].IngestedAt)
		}
		return all[i].DocID < all[j].DocID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return nil, nil
		}
		all = all[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
