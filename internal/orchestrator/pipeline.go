// Package orchestrator is the extraction orchestrator: it drives one
// document through the tiered extraction cascade, merges the three tiers'
// contributions, and hands the result to the graph writer, all while
// recording every state transition to docstore's append-only event log.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"docgraph/internal/doerr"
	"docgraph/internal/docstore"
	"docgraph/internal/extract/cache"
	"docgraph/internal/extract/tiera"
	"docgraph/internal/extract/tierb"
	"docgraph/internal/extract/tierc"
	"docgraph/internal/graphstore"
	"docgraph/internal/model"
	"docgraph/internal/obs"
)

// Pipeline wires together one worker's view of the extraction cascade.
type Pipeline struct {
	Docs    docstore.Interface
	TierA   *tiera.Extractor
	TierB   *tierb.Extractor
	TierC   *tierc.Extractor
	Writer  *graphstore.Writer
	DLQ     *cache.DLQ
	Metrics obs.Metrics

	// Politeness, when set, gates Tier-A parsing per source domain so the
	// core never outpaces a reader that is still emitting from the same
	// upstream. Nil disables throttling.
	Politeness *Politeness
}

// NewPipeline constructs a Pipeline. Metrics defaults to a no-op sink if nil.
func NewPipeline(docs docstore.Interface, a *tiera.Extractor, b *tierb.Extractor, c *tierc.Extractor, w *graphstore.Writer, dlq *cache.DLQ, metrics obs.Metrics) *Pipeline {
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	return &Pipeline{Docs: docs, TierA: a, TierB: b, TierC: c, Writer: w, DLQ: dlq, Metrics: metrics}
}

// ProcessDocument drives docID through the full per-step contract:
// load, Tier A, Tier B, Tier C, entity-resolution merge, graph write,
// terminal state transition. Each stage's completion is recorded as a
// state transition in docstore before the next stage starts, so a crash
// mid-pipeline resumes from the last completed tier rather than restarting
// Tier A (an orchestrator restart re-drives any document not in a terminal
// state by re-reading ListByState).
func (p *Pipeline) ProcessDocument(ctx context.Context, docID string) error {
	ctx, span := obs.StartSpan(ctx, "ingest.doc", "doc_id", docID)
	defer span.End()

	doc, state, ok, err := p.Docs.GetDocument(ctx, docID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown document %q", docID)
	}
	if err != nil {
		return err
	}
	if state == model.StateCompleted {
		return nil
	}

	var tiered []tieredPacket

	if state == model.StatePending {
		if err := p.Politeness.Acquire(ctx, Domain(doc.SourceURL)); err != nil {
			return err
		}
		tierCtx, tierSpan := obs.StartSpan(ctx, "extract.tierA", "doc_id", docID)
		packetA, warnings, err := p.TierA.Extract(tierCtx, doc)
		tierSpan.End()
		if err != nil {
			return p.fail(ctx, docID, doerr.CodeOf(err), err)
		}
		for _, w := range warnings {
			p.Metrics.IncCounter("tiera_warnings_total", map[string]string{})
			_ = w
		}
		tiered = append(tiered, tieredPacket{tier: model.TierA, packet: packetA})
		if err := p.Docs.SetState(ctx, docID, model.StateTierADone, "tier a complete"); err != nil {
			return err
		}
		state = model.StateTierADone
	}

	var windows []model.Window
	if state == model.StateTierADone {
		tierCtx, tierSpan := obs.StartSpan(ctx, "extract.tierB", "doc_id", docID)
		resB, err := p.TierB.Extract(tierCtx, doc)
		tierSpan.End()
		if err != nil {
			return p.fail(ctx, docID, doerr.CodeOf(err), err)
		}
		tiered = append(tiered, tieredPacket{tier: model.TierB, packet: resB.Packet})
		windows = resB.Windows
		if err := p.Docs.SaveWindows(ctx, windows); err != nil {
			return err
		}
		if err := p.Docs.SetState(ctx, docID, model.StateTierBDone, fmt.Sprintf("%d candidate windows", len(windows))); err != nil {
			return err
		}
		state = model.StateTierBDone
	}

	if state == model.StateTierBDone {
		if windows == nil {
			windows, err = p.Docs.ListWindows(ctx, docID)
			if err != nil {
				return err
			}
		}
		tierCtx, tierSpan := obs.StartSpan(ctx, "extract.tierC", "doc_id", docID)
		results, err := p.TierC.ExtractBatches(tierCtx, windows)
		tierSpan.End()
		if err != nil {
			return p.fail(ctx, docID, doerr.CodeOf(err), err)
		}
		var packetC model.TriplePacket
		for _, r := range results {
			if r.Dropped {
				if p.DLQ != nil && r.DLQReason != "" {
					_, _ = p.DLQ.Push(ctx, fmt.Sprintf("tierc:%s:%d", docID, r.Window.Ordinal), r.DLQReason, r.Window.Text, nil)
				}
				continue
			}
			packetC.Nodes = append(packetC.Nodes, r.Packet.Nodes...)
			packetC.Edges = append(packetC.Edges, r.Packet.Edges...)
			packetC.Provenance = append(packetC.Provenance, r.Packet.Provenance...)
		}
		tiered = append(tiered, tieredPacket{tier: model.TierC, packet: packetC})
		if err := p.Docs.SetState(ctx, docID, model.StateTierCDone, fmt.Sprintf("%d windows scored", len(results))); err != nil {
			return err
		}
		state = model.StateTierCDone
	}

	if len(tiered) == 0 {
		// Resumed past tier C with nothing recomputed this run (e.g. a
		// process restart between tier_c_done and the write); nothing left
		// to merge, so finalize is a no-op success.
		return p.Docs.SetState(ctx, docID, model.StateCompleted, "resumed with nothing to write")
	}

	merged := mergePackets(tiered)
	writeCtx, writeSpan := obs.StartSpan(ctx, "graph.write", "doc_id", docID)
	quarantined, err := p.Writer.Apply(writeCtx, merged)
	writeSpan.End()
	if err != nil {
		return p.fail(ctx, docID, doerr.ECodeGraphWrite, err)
	}
	if len(quarantined) > 0 {
		detail := fmt.Sprintf("%d rows quarantined after graph write", len(quarantined))
		if p.DLQ != nil {
			for _, q := range quarantined {
				_, _ = p.DLQ.Push(ctx, fmt.Sprintf("graphwrite:%s:%s", docID, q.Kind), doerr.ECodeGraphWrite, detail, nil)
			}
		}
	}

	if p.DLQ != nil {
		// A completed run clears any pending retry bookkeeping for the document.
		_ = p.DLQ.Resolve(ctx, "document:"+docID)
	}
	return p.Docs.SetState(ctx, docID, model.StateCompleted, fmt.Sprintf("%d nodes, %d edges written", len(merged.Nodes), len(merged.Edges)))
}

func (p *Pipeline) fail(ctx context.Context, docID string, cause doerr.Code, cause2 error) error {
	_ = p.Docs.SetState(ctx, docID, model.StateFailed, fmt.Sprintf("%s: %v", cause, cause2))
	p.Metrics.IncCounter("orchestrator_documents_failed_total", map[string]string{})
	if p.DLQ != nil {
		_, _ = p.DLQ.Push(ctx, "document:"+docID, cause, cause2.Error(), nil)
	}
	return cause2
}

// Reprocess resets documents ingested within window back to pending and
// returns how many were reset, for `extract reprocess --since`. The caller is responsible for re-driving the
// returned count through ProcessDocument.
func (p *Pipeline) Reprocess(ctx context.Context, window time.Duration) (int, error) {
	return p.Docs.ReprocessSince(ctx, window)
}
