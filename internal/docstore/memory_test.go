package docstore

import (
	"context"
	"testing"
	"time"

	"docgraph/internal/model"
)

func TestMemoryStoreLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := model.NormalizedDocument{DocID: "doc-1", SourceType: model.SourceGitHub, IngestedAt: time.Now()}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	_, state, ok, err := s.GetDocument(ctx, "doc-1")
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}
	if state != model.StatePending {
		t.Fatalf("expected pending state, got %v", state)
	}

	if err := s.SetState(ctx, "doc-1", model.StateTierADone, "tier a complete"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	_, state, _, _ = s.GetDocument(ctx, "doc-1")
	if state != model.StateTierADone {
		t.Fatalf("expected tier_a_done, got %v", state)
	}

	events, err := s.ListEvents(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].State != model.StateTierADone {
		t.Fatalf("expected one tier_a_done event, got %+v", events)
	}
}

func TestMemoryStoreListByState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		doc := model.NormalizedDocument{DocID: id, IngestedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := s.UpsertDocument(ctx, doc); err != nil {
			t.Fatalf("UpsertDocument: %v", err)
		}
	}
	if err := s.SetState(ctx, "b", model.StateCompleted, ""); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	pending, err := s.ListByState(ctx, model.StatePending, 10)
	if err != nil {
		t.Fatalf("ListByState: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending docs, got %v", pending)
	}
	if pending[0] != "a" || pending[1] != "c" {
		t.Fatalf("expected oldest-first order [a c], got %v", pending)
	}
}

func TestMemoryStoreReprocessSincePreservesChunks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := model.NormalizedDocument{DocID: "doc-1", IngestedAt: time.Now()}
	_ = s.UpsertDocument(ctx, doc)
	_ = s.SetState(ctx, "doc-1", model.StateCompleted, "")
	_ = s.InsertChunks(ctx, "doc-1", []model.Chunk{{ChunkID: "c1", DocID: "doc-1", Ordinal: 0, Text: "hello"}})

	n, err := s.ReprocessSince(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ReprocessSince: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 document reset, got %d", n)
	}

	_, state, _, _ := s.GetDocument(ctx, "doc-1")
	if state != model.StatePending {
		t.Fatalf("expected reset to pending, got %v", state)
	}
	chunks, _ := s.ListChunks(ctx, "doc-1")
	if len(chunks) != 1 {
		t.Fatalf("expected chunks preserved across reprocess, got %v", chunks)
	}
}

func TestMemoryStorePurgeDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.UpsertDocument(ctx, model.NormalizedDocument{DocID: "doc-1", IngestedAt: time.Now()})
	_ = s.InsertChunks(ctx, "doc-1", []model.Chunk{{ChunkID: "c1", DocID: "doc-1"}})

	if err := s.PurgeDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("PurgeDocument: %v", err)
	}
	if _, _, ok, _ := s.GetDocument(ctx, "doc-1"); ok {
		t.Fatalf("expected document purged")
	}
	if chunks, _ := s.ListChunks(ctx, "doc-1"); len(chunks) != 0 {
		t.Fatalf("expected chunks purged, got %v", chunks)
	}
}
