package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docgraph/internal/docstore"
	"docgraph/internal/extract/tiera"
	"docgraph/internal/extract/tierb"
	"docgraph/internal/extract/tierc"
	"docgraph/internal/graphstore"
	"docgraph/internal/llmclient"
	"docgraph/internal/model"
	"docgraph/internal/persistence/databases"
	"docgraph/internal/schema"
)

func chatBody(content string) string {
	resp := map[string]any{
		"id": "chatcmpl-test", "object": "chat.completion", "created": 0, "model": "test-model",
		"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testPipeline(t *testing.T, llmContent string) (*Pipeline, *docstore.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatBody(llmContent)))
	}))
	t.Cleanup(srv.Close)

	reg := schema.New()
	_ = reg.RegisterNodeType(schema.NodeType{Tag: "IP", NaturalKey: []string{"address"}})
	_ = reg.RegisterEdgeType(schema.EdgeType{Tag: "DEPENDS_ON"})

	llm := llmclient.New(srv.URL, "test-key", "test-model", srv.Client())
	docs := docstore.NewMemoryStore()
	writer := graphstore.New(databases.NewMemoryGraph())

	p := NewPipeline(docs, tiera.New(), tierb.New(), tierc.New(llm, reg), writer, nil, nil)
	return p, docs
}

func seedDocument(t *testing.T, docs *docstore.MemoryStore, docID, text string) {
	t.Helper()
	err := docs.UpsertDocument(context.Background(), model.NormalizedDocument{
		DocID: docID, SourceType: model.SourceGitHub, IngestedAt: time.Now(), Text: text,
	})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
}

func TestProcessDocumentRunsFullCascadeToCompletion(t *testing.T) {
	p, docs := testPipeline(t, `{"entities":[{"type":"IP","name":"10.0.0.2","props":{}}],"relations":[],"confidence":0.9}`)
	seedDocument(t, docs, "doc-1", "10.0.0.1 depends on 10.0.0.2.")

	if err := p.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	_, state, ok, err := docs.GetDocument(context.Background(), "doc-1")
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}
	if state != model.StateCompleted {
		t.Fatalf("expected state completed, got %s", state)
	}

	events, err := docs.ListEvents(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	wantSeq := []model.ExtractionState{model.StateTierADone, model.StateTierBDone, model.StateTierCDone, model.StateCompleted}
	if len(events) != len(wantSeq) {
		t.Fatalf("expected %d transitions, got %d: %+v", len(wantSeq), len(events), events)
	}
	for i, want := range wantSeq {
		if events[i].State != want {
			t.Fatalf("transition %d: expected %s, got %s", i, want, events[i].State)
		}
	}
}

func TestProcessDocumentResumesFromIntermediateState(t *testing.T) {
	p, docs := testPipeline(t, `{"entities":[],"relations":[],"confidence":0.9}`)
	seedDocument(t, docs, "doc-2", "a plain sentence with nothing special in it")

	if err := docs.SetState(context.Background(), "doc-2", model.StateTierBDone, "seeded mid-cascade"); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if err := p.ProcessDocument(context.Background(), "doc-2"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	events, err := docs.ListEvents(context.Background(), "doc-2")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	newEvents := events[1:] // events[0] is the seeded transition into tier_b_done itself
	for _, e := range newEvents {
		if e.State == model.StateTierADone || e.State == model.StateTierBDone {
			t.Fatalf("expected resume to skip already-completed tiers, but saw transition to %s", e.State)
		}
	}
	if newEvents[len(newEvents)-1].State != model.StateCompleted {
		t.Fatalf("expected final state completed, got %s", newEvents[len(newEvents)-1].State)
	}
}

func TestProcessDocumentNoOpOnCompleted(t *testing.T) {
	p, docs := testPipeline(t, `{"entities":[],"relations":[],"confidence":0.9}`)
	seedDocument(t, docs, "doc-3", "already done")
	if err := docs.SetState(context.Background(), "doc-3", model.StateCompleted, "preseeded"); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if err := p.ProcessDocument(context.Background(), "doc-3"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	events, err := docs.ListEvents(context.Background(), "doc-3")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected no new transitions beyond the preseeded one, got %d: %+v", len(events), events)
	}
}

func TestProcessDocumentEmptyDocumentCompletesWithNoTriples(t *testing.T) {
	p, docs := testPipeline(t, `{"entities":[],"relations":[],"confidence":0.9}`)
	seedDocument(t, docs, "doc-empty", "")

	if err := p.ProcessDocument(context.Background(), "doc-empty"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	_, state, _, _ := docs.GetDocument(context.Background(), "doc-empty")
	if state != model.StateCompleted {
		t.Fatalf("empty document should complete, got %s", state)
	}
	windows, _ := docs.ListWindows(context.Background(), "doc-empty")
	if len(windows) != 0 {
		t.Fatalf("empty document produced %d windows", len(windows))
	}
}

func TestProcessDocumentUnknownDocIDErrors(t *testing.T) {
	p, _ := testPipeline(t, `{"entities":[],"relations":[],"confidence":0.9}`)
	if err := p.ProcessDocument(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown document")
	}
}
