// Package tiera is the deterministic extractor: regex, dictionary, and
// structured-config parsing that turns a NormalizedDocument into
// high-confidence triples without statistical inference. Every edge it
// emits carries tier='A', confidence=1.0.
package tiera

import (
	"context"
	"strings"
	"time"

	"docgraph/internal/doerr"
	"docgraph/internal/model"
	"docgraph/internal/obs"
)

// Version is this extractor's semver, stamped as extractor_version on every
// edge it emits. Bumping it invalidates the cache entries keyed on it and
// causes reprocess to supersede rather than duplicate prior contributions.
const Version = "1.0.0"

// Extractor runs the Tier A pipeline over a NormalizedDocument.
type Extractor struct {
	vocab   *automaton
	metrics obs.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMetrics attaches a metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New constructs an Extractor with the fixed known-service vocabulary
// compiled into an Aho-Corasick automaton once at startup.
func New(opts ...Option) *Extractor {
	e := &Extractor{vocab: newAutomaton(knownServices), metrics: obs.NoopMetrics{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract runs every Tier A sub-pass over doc and returns the accumulated
// TriplePacket. Per-block malformations are folded into warnings and do
// not fail the call. The only error returned is E_TIMEOUT when ctx is
// already done; no path returns an E_PARSE error.
func (e *Extractor) Extract(ctx context.Context, doc model.NormalizedDocument) (model.TriplePacket, []string, error) {
	if err := ctx.Err(); err != nil {
		return model.TriplePacket{}, nil, doerr.New(doerr.ECodeTimeout, err)
	}

	now := time.Now()
	var packet model.TriplePacket
	var warnings []string

	for _, sub := range doc.SubStructures {
		if sub.Kind != "code_block" {
			continue
		}
		lang := strings.ToLower(sub.Language)
		switch {
		case lang == "yaml" || lang == "yml" || lang == "compose":
			raw, err := parseYAMLShape(sub.Content)
			if err != nil {
				warnings = append(warnings, "tiera: skipping malformed YAML block: "+err.Error())
				continue
			}
			if looksLikeCompose(raw) {
				p, warn, err := parseComposeBlock(doc.DocID, now, []byte(sub.Content), Version)
				if err != nil {
					warnings = append(warnings, "tiera: skipping malformed compose block: "+err.Error())
					continue
				}
				packet = mergePackets(packet, p)
				warnings = append(warnings, warn...)
			}
		case lang == "json":
			// JSON is a YAML superset; reuse the same shape matcher.
			raw, err := parseYAMLShape(sub.Content)
			if err != nil {
				warnings = append(warnings, "tiera: skipping malformed JSON block: "+err.Error())
				continue
			}
			if looksLikeCompose(raw) {
				p, warn, err := parseComposeBlock(doc.DocID, now, []byte(sub.Content), Version)
				if err == nil {
					packet = mergePackets(packet, p)
					warnings = append(warnings, warn...)
				}
			}
		case lang == "nginx" || lang == "conf" || looksLikeReverseProxyConf(sub.Content):
			packet = mergePackets(packet, parseReverseProxyBlock(doc.DocID, now, sub.Content, Version))
		}
	}

	// Whole-document text also gets the reverse-proxy matcher: SWAG/nginx
	// snippets often ship inline, not fenced.
	if looksLikeReverseProxyConf(doc.Text) {
		packet = mergePackets(packet, parseReverseProxyBlock(doc.DocID, now, doc.Text, Version))
	}

	packet = mergePackets(packet, e.lexicalPass(doc, now))

	for range packet.Nodes {
		// provenance for Tier A is document-level (no window concept).
	}
	for range packet.Edges {
		packet.Provenance = append(packet.Provenance, model.Provenance{DocID: doc.DocID, Tier: model.TierA})
	}

	e.metrics.IncCounter("tiera_documents_processed_total", map[string]string{})
	e.metrics.IncCounter("tiera_edges_emitted_total", map[string]string{})
	if len(warnings) > 0 {
		e.metrics.IncCounter("tiera_block_warnings_total", map[string]string{})
	}
	return packet, warnings, nil
}

// lexicalPass runs the Aho-Corasick known-vocabulary scan plus the IPv4
// and FQDN pattern matchers over the plain document text. CIDR, port and
// URL literals are not extracted by this pass.
func (e *Extractor) lexicalPass(doc model.NormalizedDocument, now time.Time) model.TriplePacket {
	var packet model.TriplePacket
	lower := strings.ToLower(doc.Text)

	seenService := map[string]bool{}
	for _, m := range e.vocab.Scan(lower) {
		if seenService[m.Keyword] {
			continue
		}
		seenService[m.Keyword] = true
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: "Service", NaturalKey: m.Keyword,
			Props: map[string]any{"name": m.Keyword},
		})
		packet.Edges = append(packet.Edges, model.EdgeRecord{
			EdgeHeader: model.EdgeHeader{
				TypeTag: "MENTIONS", SrcRef: doc.DocID, DstRef: m.Keyword,
				CreatedAt: now, SourceTimestamp: now, SourceDocID: doc.DocID,
				Confidence: 1.0, ExtractorVersion: Version, Tier: model.TierA,
			},
		})
	}

	for _, ip := range extractIPs(doc.Text) {
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: "IP", NaturalKey: ip, Props: map[string]any{"address": ip},
		})
		packet.Edges = append(packet.Edges, model.EdgeRecord{
			EdgeHeader: model.EdgeHeader{
				TypeTag: "MENTIONS", SrcRef: doc.DocID, DstRef: ip,
				CreatedAt: now, SourceTimestamp: now, SourceDocID: doc.DocID,
				Confidence: 1.0, ExtractorVersion: Version, Tier: model.TierA,
			},
		})
	}

	for _, host := range extractFQDNs(doc.Text) {
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: "Host", NaturalKey: host, Props: map[string]any{"fqdn": host},
		})
	}

	return packet
}

func mergePackets(a, b model.TriplePacket) model.TriplePacket {
	a.Nodes = append(a.Nodes, b.Nodes...)
	a.Edges = append(a.Edges, b.Edges...)
	a.Provenance = append(a.Provenance, b.Provenance...)
	return a
}
