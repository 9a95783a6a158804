// Package synth is the answer synthesizer: it turns a RetrievalBundle
// and the original question into a citation-enforcing prompt, calls the
// synthesis LLM once, and returns the grounded answer plus its sources.
package synth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docgraph/internal/llmclient"
	"docgraph/internal/obs"
	"docgraph/internal/retrieve"
)

const systemPrompt = `You answer questions using only the context block provided below. ` +
	`Every sentence that asserts a fact must cite its source as [n], where n is the ` +
	`numeric citation key of the chunk or graph fact it came from. Do not use outside ` +
	`knowledge. If the context does not contain enough information to answer, respond ` +
	`with exactly: insufficient evidence`

const insufficientEvidence = "insufficient evidence"

// Source is one citation in an Answer's source list.
type Source struct {
	Index    int
	URLOrDoc string
}

// Answer is the synthesizer output contract.
type Answer struct {
	Text    string
	Sources []Source
	Latency LatencyBreakdown
}

// LatencyBreakdown extends the retriever's breakdown with the synthesis stage.
type LatencyBreakdown struct {
	retrieve.LatencyBreakdown
	Synthesis time.Duration
}

// Synthesizer answers a question from a RetrievalBundle.
type Synthesizer struct {
	llm *llmclient.Client
}

// New constructs a Synthesizer over an LLM client.
func New(llm *llmclient.Client) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Answer consumes bundle and question and returns a grounded, cited answer.
// An empty bundle (no chunks and no subgraph nodes) short-circuits to the
// deterministic "insufficient evidence" response without calling the LLM.
func (s *Synthesizer) Answer(ctx context.Context, question string, bundle retrieve.RetrievalBundle) (Answer, error) {
	if len(bundle.OrderedChunks) == 0 && len(bundle.Subgraph.Nodes) == 0 {
		return Answer{Text: insufficientEvidence, Latency: LatencyBreakdown{LatencyBreakdown: bundle.Latency}}, nil
	}

	contextBlock, sources := buildContext(bundle)

	t0 := time.Now()
	synthCtx, span := obs.StartSpan(ctx, "synth")
	defer span.End()
	resp, err := s.llm.Complete(synthCtx, llmclient.Request{
		System: systemPrompt,
		User:   fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question),
	})
	if err != nil {
		return Answer{}, fmt.Errorf("synth: completion: %w", err)
	}
	synthesisLatency := time.Since(t0)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		text = insufficientEvidence
	}

	return Answer{
		Text:    text,
		Sources: sourcesFor(text, sources),
		Latency: LatencyBreakdown{LatencyBreakdown: bundle.Latency, Synthesis: synthesisLatency},
	}, nil
}

// buildContext concatenates reranked chunks (each prefixed with its numeric
// citation key) followed by a compact textual serialization of the
// subgraph. Citation keys are assigned in chunk order first, then, when the
// subgraph has at least one edge, continue numbering for every subgraph node
// in Subgraph.Nodes order, so the synthesis prompt and the final Sources
// list share one key space.
func buildContext(bundle retrieve.RetrievalBundle) (string, []Source) {
	var b strings.Builder
	var sources []Source

	key := 1
	for _, c := range bundle.OrderedChunks {
		fmt.Fprintf(&b, "[%d] %s\n", key, c.Text)
		sources = append(sources, Source{Index: key, URLOrDoc: c.DocID})
		key++
	}

	if len(bundle.Subgraph.Edges) > 0 {
		b.WriteString("\nGraph facts:\n")
		nodeKey := map[string]int{}
		for _, n := range bundle.Subgraph.Nodes {
			nodeKey[n] = key
			sources = append(sources, Source{Index: key, URLOrDoc: n})
			key++
		}
		for _, e := range bundle.Subgraph.Edges {
			fmt.Fprintf(&b, "[%d] %s %s %s [%d]\n", nodeKey[e.SrcRef], e.SrcRef, e.TypeTag, e.DstRef, nodeKey[e.DstRef])
		}
	}

	return b.String(), sources
}

// sourcesFor keeps only the sources the answer text actually cited.
func sourcesFor(text string, all []Source) []Source {
	cited := map[int]bool{}
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return r != '[' && r != ']' && !(r >= '0' && r <= '9')
	}) {
		n, err := strconv.Atoi(strings.Trim(tok, "[]"))
		if err == nil {
			cited[n] = true
		}
	}
	if len(cited) == 0 {
		return nil
	}
	var out []Source
	for _, src := range all {
		if cited[src.Index] {
			out = append(out, src)
		}
	}
	return out
}
