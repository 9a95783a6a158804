package tierb

import (
	"context"
	"time"

	"docgraph/internal/model"
	"docgraph/internal/obs"
)

// Version is this extractor's semver.
const Version = "1.0.0"

// DefaultConfidence is the Tier B edge confidence absent a per-type override.
const DefaultConfidence = 0.85

// Extractor runs the Tier B pipeline: tokenize -> tag -> match relations ->
// score windows. All operations are deterministic rule-based passes (no
// RNG), keeping identical input mapped to identical output for cache keying
// without needing an explicit seed.
type Extractor struct {
	metrics obs.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMetrics attaches a metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New constructs an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{metrics: obs.NoopMetrics{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is Tier B's output: a TriplePacket plus the candidate windows for
// Tier C.
type Result struct {
	Packet  model.TriplePacket
	Windows []model.Window
}

// Extract tokenizes doc.Text into sentences, tags entities, matches
// relations, and selects Tier C candidate windows.
func (e *Extractor) Extract(ctx context.Context, doc model.NormalizedDocument) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := time.Now()
	sentences := Split(doc.Text)

	var packet model.TriplePacket
	scores := make([]float64, len(sentences))
	seenNode := map[string]bool{}

	for i, s := range sentences {
		mentions := TagEntities(s)
		scores[i] = ScoreSentence(s, mentions)

		for _, m := range mentions {
			if seenNode[m.TypeTag+"|"+m.NaturalKey] {
				continue
			}
			seenNode[m.TypeTag+"|"+m.NaturalKey] = true
			packet.Nodes = append(packet.Nodes, model.NodeRecord{
				TypeTag: m.TypeTag, NaturalKey: m.NaturalKey, Props: m.Props,
			})
		}

		for _, rel := range MatchRelations(s, mentions) {
			packet.Edges = append(packet.Edges, model.EdgeRecord{
				EdgeHeader: model.EdgeHeader{
					TypeTag: rel.TypeTag, SrcRef: rel.Src.NaturalKey, DstRef: rel.Dst.NaturalKey,
					CreatedAt: now, SourceTimestamp: now, SourceDocID: doc.DocID,
					Confidence: DefaultConfidence, ExtractorVersion: Version, Tier: model.TierB,
				},
			})
			packet.Provenance = append(packet.Provenance, model.Provenance{
				DocID: doc.DocID, Tier: model.TierB,
			})
		}
	}

	windows := BuildWindows(doc.DocID, sentences, scores)

	e.metrics.IncCounter("tierb_sentences_processed_total", map[string]string{})
	e.metrics.ObserveHistogram("tierb_windows_selected", float64(len(windows)), map[string]string{})

	return Result{Packet: packet, Windows: windows}, nil
}
