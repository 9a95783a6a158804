package orchestrator

import (
	"context"
	"testing"
	"time"

	"docgraph/internal/model"
)

func TestPoolDrivesPendingDocumentsToCompletion(t *testing.T) {
	p, docs := testPipeline(t, `{"entities":[],"relations":[],"confidence":0.9}`)
	seedDocument(t, docs, "doc-pool-1", "a sentence with nothing notable")

	pool := NewPool(p, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = pool.Run(ctx, 20*time.Millisecond)

	_, state, ok, err := docs.GetDocument(context.Background(), "doc-pool-1")
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}
	if state != model.StateCompleted {
		t.Fatalf("expected pool to drive document to completed, got %s", state)
	}
}

func TestPoolSkipsDocumentsAlreadyInFlight(t *testing.T) {
	p, docs := testPipeline(t, `{"entities":[],"relations":[],"confidence":0.9}`)
	seedDocument(t, docs, "doc-pool-2", "irrelevant")

	pool := NewPool(p, 1)
	pool.claim("doc-pool-2")
	if !pool.isInFlight("doc-pool-2") {
		t.Fatalf("expected claim to mark document in flight")
	}
	pool.release("doc-pool-2")
	if pool.isInFlight("doc-pool-2") {
		t.Fatalf("expected release to clear in-flight tracking")
	}
}
