package tierc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"docgraph/internal/extract/cache"
	"docgraph/internal/llmclient"
	"docgraph/internal/model"
	"docgraph/internal/schema"
)

func chatCompletionBody(content string) string {
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testRegistry() *schema.Registry {
	reg := schema.New()
	_ = reg.RegisterNodeType(schema.NodeType{Tag: "Service", NaturalKey: []string{"name"}})
	_ = reg.RegisterNodeType(schema.NodeType{Tag: "IP", NaturalKey: []string{"address"}})
	_ = reg.RegisterEdgeType(schema.EdgeType{Tag: "DEPENDS_ON"})
	return reg
}

func TestExtractOneAcceptsHighConfidence(t *testing.T) {
	body := chatCompletionBody(`{"entities":[{"type":"Service","name":"nginx","props":{}},{"type":"Service","name":"postgres","props":{}}],"relations":[{"type":"DEPENDS_ON","src":"nginx","dst":"postgres","props":{}}],"confidence":0.92}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	llm := llmclient.New(srv.URL, "test-key", "test-model", srv.Client())
	e := New(llm, testRegistry())

	w := model.Window{DocID: "doc-1", Ordinal: 0, Text: "nginx depends on postgres", TokenSpan: [2]int{0, 5}}
	results, err := e.ExtractBatches(context.Background(), []model.Window{w})
	if err != nil {
		t.Fatalf("ExtractBatches returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Dropped {
		t.Fatalf("expected accepted result, got dropped")
	}
	if len(r.Packet.Edges) != 1 || r.Packet.Edges[0].TypeTag != "DEPENDS_ON" {
		t.Fatalf("expected one DEPENDS_ON edge, got %+v", r.Packet.Edges)
	}
}

func TestExtractOneDropsLowConfidence(t *testing.T) {
	body := chatCompletionBody(`{"entities":[],"relations":[],"confidence":0.2}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	llm := llmclient.New(srv.URL, "test-key", "test-model", srv.Client())
	e := New(llm, testRegistry())

	w := model.Window{DocID: "doc-1", Ordinal: 0, Text: "nothing relevant here at all", TokenSpan: [2]int{0, 5}}
	results, err := e.ExtractBatches(context.Background(), []model.Window{w})
	if err != nil {
		t.Fatalf("ExtractBatches returned error: %v", err)
	}
	if len(results) != 1 || !results[0].Dropped {
		t.Fatalf("expected dropped low-confidence result, got %+v", results)
	}
}

func TestExtractOneUsesCache(t *testing.T) {
	calls := 0
	body := chatCompletionBody(`{"entities":[{"type":"IP","name":"10.0.0.1","props":{}}],"relations":[],"confidence":0.9}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	c, err := cache.New(mr.Addr())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer c.Close()

	llm := llmclient.New(srv.URL, "test-key", "test-model", srv.Client())
	e := New(llm, testRegistry(), WithCache(c))

	win := model.Window{DocID: "doc-1", Ordinal: 0, Text: "10.0.0.1 is reachable", TokenSpan: [2]int{0, 4}}
	if _, err := e.ExtractBatches(context.Background(), []model.Window{win}); err != nil {
		t.Fatalf("first ExtractBatches: %v", err)
	}
	results, err := e.ExtractBatches(context.Background(), []model.Window{win})
	if err != nil {
		t.Fatalf("second ExtractBatches: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache to suppress the second LLM call, got %d calls", calls)
	}
	if !results[0].CacheHit {
		t.Fatalf("expected second result to report CacheHit")
	}
}

func TestExtractOneRetriesMalformedJSONThenDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionBody("not json at all")))
	}))
	defer srv.Close()

	llm := llmclient.New(srv.URL, "test-key", "test-model", srv.Client())
	e := New(llm, testRegistry())

	win := model.Window{DocID: "doc-1", Ordinal: 0, Text: "garbled response case", TokenSpan: [2]int{0, 3}}
	results, err := e.ExtractBatches(context.Background(), []model.Window{win})
	if err != nil {
		t.Fatalf("ExtractBatches returned error: %v", err)
	}
	if len(results) != 1 || !results[0].Dropped {
		t.Fatalf("expected malformed response to end up dropped to DLQ, got %+v", results)
	}
}
