package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"docgraph/internal/docstore"
	"docgraph/internal/doerr"
	"docgraph/internal/extract/cache"
	"docgraph/internal/model"
)

func seedDLQItem(t *testing.T, mr *miniredis.Miniredis, key string, attempts int, lastAttempt time.Time) {
	t.Helper()
	item := cache.Item{
		Key:         key,
		CauseCode:   doerr.ECodeTimeout,
		Attempts:    attempts,
		FirstSeen:   lastAttempt,
		LastAttempt: lastAttempt,
	}
	data, _ := json.Marshal(item)
	if err := mr.Set("dlq:pending:"+key, string(data)); err != nil {
		t.Fatal(err)
	}
}

func TestReapOnceResetsEligibleDocument(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dlq, err := cache.NewDLQ(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dlq.Close() })

	docs := docstore.NewMemoryStore()
	if err := docs.UpsertDocument(ctx, model.NormalizedDocument{DocID: "doc1", IngestedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := docs.SetState(ctx, "doc1", model.StateFailed, "timed out"); err != nil {
		t.Fatal(err)
	}
	seedDLQItem(t, mr, "document:doc1", 1, time.Now().Add(-time.Hour))

	reapOnce(ctx, dlq, docs)

	_, state, _, _ := docs.GetDocument(ctx, "doc1")
	if state != model.StatePending {
		t.Fatalf("reaper did not reset document, state = %s", state)
	}
	item, ok := dlq.Get(ctx, "document:doc1")
	if !ok {
		t.Fatal("pending item vanished before the retry completed")
	}
	if item.Attempts != 2 {
		t.Fatalf("retry did not spend an attempt, attempts = %d", item.Attempts)
	}
}

func TestReapOnceEscalatesExhaustedDocument(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dlq, err := cache.NewDLQ(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dlq.Close() })

	docs := docstore.NewMemoryStore()
	if err := docs.UpsertDocument(ctx, model.NormalizedDocument{DocID: "doc2", IngestedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := docs.SetState(ctx, "doc2", model.StateFailed, "timed out"); err != nil {
		t.Fatal(err)
	}
	seedDLQItem(t, mr, "document:doc2", 2, time.Now().Add(-time.Hour))

	reapOnce(ctx, dlq, docs)

	_, state, _, _ := docs.GetDocument(ctx, "doc2")
	if state != model.StateFailed {
		t.Fatalf("exhausted document was reset, state = %s", state)
	}
	if _, ok := dlq.Get(ctx, "document:doc2"); ok {
		t.Fatal("exhausted item still pending, expected escalation to dlq:failed")
	}
}

func TestReapOnceSkipsItemsStillInBackoff(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dlq, err := cache.NewDLQ(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dlq.Close() })

	docs := docstore.NewMemoryStore()
	if err := docs.UpsertDocument(ctx, model.NormalizedDocument{DocID: "doc3", IngestedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := docs.SetState(ctx, "doc3", model.StateFailed, "timed out"); err != nil {
		t.Fatal(err)
	}
	seedDLQItem(t, mr, "document:doc3", 1, time.Now())

	reapOnce(ctx, dlq, docs)

	_, state, _, _ := docs.GetDocument(ctx, "doc3")
	if state != model.StateFailed {
		t.Fatalf("in-backoff document was reset early, state = %s", state)
	}
}
