package docstore

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"docgraph/internal/model"
)

var allStates = []model.ExtractionState{
	model.StatePending, model.StateTierADone, model.StateTierBDone,
	model.StateTierCDone, model.StateCompleted, model.StateFailed,
}

func rank(s model.ExtractionState) int {
	for i, c := range allStates {
		if c == s {
			return i
		}
	}
	return -1
}

// TestSetStateNeverGoesBackward drives random transition sequences against
// the store and asserts the lifecycle invariant holds throughout: the
// recorded state only ever moves forward, re-stamps itself, or drops to
// failed; every rejected request leaves the state untouched.
func TestSetStateNeverGoesBackward(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		s := NewMemoryStore()
		doc := model.NormalizedDocument{DocID: "doc", SourceType: model.SourceWeb, IngestedAt: time.Now()}
		if err := s.UpsertDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}

		current := model.StatePending
		for step := 0; step < 40; step++ {
			next := allStates[rng.Intn(len(allStates))]
			err := s.SetState(ctx, "doc", next, "")

			_, observed, _, gerr := s.GetDocument(ctx, "doc")
			if gerr != nil {
				t.Fatal(gerr)
			}

			if err == nil {
				if next != model.StateFailed && next != current && rank(next) < rank(current) {
					t.Fatalf("trial %d step %d: backward transition %s -> %s accepted", trial, step, current, next)
				}
				if observed != next {
					t.Fatalf("trial %d step %d: accepted transition not recorded, state=%s want=%s", trial, step, observed, next)
				}
				current = next
			} else if observed != current {
				t.Fatalf("trial %d step %d: rejected transition mutated state to %s", trial, step, observed)
			}

			// Failed is terminal within a run; only reprocess may leave it.
			if current == model.StateFailed && step%7 == 0 {
				if _, err := s.ReprocessSince(ctx, time.Hour); err != nil {
					t.Fatal(err)
				}
				_, observed, _, _ = s.GetDocument(ctx, "doc")
				if observed != model.StatePending {
					t.Fatalf("reprocess did not reset to pending, got %s", observed)
				}
				current = model.StatePending
			}
		}
	}
}

func TestUpsertSameContentHashIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := model.NormalizedDocument{DocID: "doc", ContentHash: "h1", Text: "v1", IngestedAt: time.Now()}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := s.SetState(ctx, "doc", model.StateCompleted, ""); err != nil {
		t.Fatal(err)
	}

	// Same hash: state is untouched.
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	_, state, _, _ := s.GetDocument(ctx, "doc")
	if state != model.StateCompleted {
		t.Fatalf("same-hash resubmission reset state to %s", state)
	}

	// New hash: the document is re-ingested and extraction restarts.
	doc.ContentHash = "h2"
	doc.Text = "v2"
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, state, _, _ := s.GetDocument(ctx, "doc")
	if state != model.StatePending || got.Text != "v2" {
		t.Fatalf("new-hash resubmission not applied: state=%s text=%q", state, got.Text)
	}
}

func TestListDocumentsFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	for i, id := range []string{"a", "b", "c", "d"} {
		st := model.SourceWeb
		if i%2 == 1 {
			st = model.SourceDockerCompose
		}
		doc := model.NormalizedDocument{DocID: id, SourceType: st, IngestedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := s.UpsertDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	web, err := s.ListDocuments(ctx, DocFilter{SourceType: model.SourceWeb})
	if err != nil {
		t.Fatal(err)
	}
	if len(web) != 2 || web[0].DocID != "a" || web[1].DocID != "c" {
		t.Fatalf("source filter wrong: %+v", web)
	}

	page, err := s.ListDocuments(ctx, DocFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].DocID != "c" || page[1].DocID != "d" {
		t.Fatalf("pagination wrong: %+v", page)
	}
}
