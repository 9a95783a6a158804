package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"docgraph/internal/doerr"
)

func testDLQ(t *testing.T) *DLQ {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewDLQ(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestPushEscalatesAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	q := testDLQ(t)

	for attempt := 1; attempt <= 2; attempt++ {
		escalated, err := q.Push(ctx, "window:doc1:3", doerr.ECodeLLMFormat, "head", nil)
		if err != nil {
			t.Fatal(err)
		}
		if escalated {
			t.Fatalf("attempt %d escalated before the budget was spent", attempt)
		}
		item, ok := q.Get(ctx, "window:doc1:3")
		if !ok {
			t.Fatalf("attempt %d: item missing from pending", attempt)
		}
		if item.Attempts != attempt {
			t.Fatalf("attempt count = %d, want %d", item.Attempts, attempt)
		}
		if item.CauseCode != doerr.ECodeLLMFormat {
			t.Fatalf("cause = %s", item.CauseCode)
		}
	}

	escalated, err := q.Push(ctx, "window:doc1:3", doerr.ECodeLLMFormat, "head", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !escalated {
		t.Fatal("third push should escalate to dlq:failed")
	}
	if _, ok := q.Get(ctx, "window:doc1:3"); ok {
		t.Fatal("escalated item still present in dlq:pending")
	}
	failed, err := q.get(ctx, failedKey("window:doc1:3"))
	if err != nil || failed == nil {
		t.Fatalf("escalated item missing from dlq:failed: %v", err)
	}
	if failed.Attempts != 3 {
		t.Fatalf("failed item attempts = %d, want 3", failed.Attempts)
	}
}

func TestResolveClearsPending(t *testing.T) {
	ctx := context.Background()
	q := testDLQ(t)

	if _, err := q.Push(ctx, "doc:a", doerr.ECodeTimeout, "", nil); err != nil {
		t.Fatal(err)
	}
	if err := q.Resolve(ctx, "doc:a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := q.Get(ctx, "doc:a"); ok {
		t.Fatal("resolved item still pending")
	}
	if depth, _ := q.PendingDepth(ctx); depth != 0 {
		t.Fatalf("pending depth = %d, want 0", depth)
	}
}

func TestNextBackoffFollowsScheduleWithinJitter(t *testing.T) {
	for i, base := range []time.Duration{time.Second, 5 * time.Second, 25 * time.Second} {
		got := NextBackoff(i + 1)
		lo := time.Duration(float64(base) * 0.75)
		hi := time.Duration(float64(base) * 1.25)
		if got < lo || got > hi {
			t.Fatalf("attempt %d backoff %s outside [%s, %s]", i+1, got, lo, hi)
		}
	}
	// Attempts past the schedule clamp to the last slot.
	if got := NextBackoff(9); got < 25*time.Second*3/4 {
		t.Fatalf("clamped backoff too small: %s", got)
	}
}
