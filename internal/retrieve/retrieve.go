package retrieve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docgraph/internal/docstore"
	"docgraph/internal/embedder"
	"docgraph/internal/model"
	"docgraph/internal/obs"
	"docgraph/internal/persistence/databases"
	"docgraph/internal/vectorstore"
)

const (
	defaultTopK      = 20
	defaultRerankTop = 5
)

// Options narrows a question down with the optional metadata filter.
type Options struct {
	SourceTypes   []model.SourceType
	IngestedAfter time.Time
	Namespace     string
	TopK          int // default 20
	RerankTopN    int // default 5
}

// LatencyBreakdown is the per-stage timing reported on every query.
type LatencyBreakdown struct {
	Embed  time.Duration
	Vector time.Duration
	Rerank time.Duration
	Graph  time.Duration
}

// RetrievedChunk is one surviving, ordered chunk in a RetrievalBundle.
type RetrievedChunk struct {
	ChunkID string
	DocID   string
	Text    string
	Score   float64
}

// RetrievalBundle is the composite context handed to the synthesizer.
type RetrievalBundle struct {
	OrderedChunks []RetrievedChunk
	Subgraph      Subgraph
	Latency       LatencyBreakdown
}

// Retriever wires the embedder, vector store, graph store, and reranker
// into the fixed six-step query pipeline.
type Retriever struct {
	Embed    embedder.Embedder
	Vectors  *vectorstore.Writer
	Graph    databases.GraphDB
	Docs     docstore.Interface
	Reranker Reranker
	Metrics  obs.Metrics

	MaxHops      int
	PerHopBudget int
}

// New constructs a Retriever. Reranker defaults to NoopReranker and Metrics
// to a no-op sink if nil.
func New(embed embedder.Embedder, vectors *vectorstore.Writer, graph databases.GraphDB, docs docstore.Interface, reranker Reranker, metrics obs.Metrics) *Retriever {
	if reranker == nil {
		reranker = NoopReranker{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	return &Retriever{Embed: embed, Vectors: vectors, Graph: graph, Docs: docs, Reranker: reranker, Metrics: metrics}
}

// Retrieve runs the full query pipeline for one question.
func (r *Retriever) Retrieve(ctx context.Context, question string, opt Options) (RetrievalBundle, error) {
	topK := opt.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	rerankTopN := opt.RerankTopN
	if rerankTopN <= 0 {
		rerankTopN = defaultRerankTop
	}

	ctx, span := obs.StartSpan(ctx, "query")
	defer span.End()

	queryStart := time.Now()
	t0 := queryStart
	embedCtx, embedSpan := obs.StartSpan(ctx, "embed")
	vecs, err := r.Embed.EmbedBatch(embedCtx, []string{question})
	embedSpan.End()
	if err != nil {
		return RetrievalBundle{}, fmt.Errorf("retrieve: embed question: %w", err)
	}
	if len(vecs) == 0 {
		return RetrievalBundle{}, fmt.Errorf("retrieve: embedder returned no vector")
	}
	embedLatency := time.Since(t0)

	filter := map[string]string{}
	if opt.Namespace != "" {
		filter["namespace"] = opt.Namespace
	}

	t0 = time.Now()
	searchCtx, searchSpan := obs.StartSpan(ctx, "vector.search")
	results, err := r.Vectors.Search(searchCtx, vecs[0], topK, filter)
	searchSpan.End()
	if err != nil {
		return RetrievalBundle{}, fmt.Errorf("retrieve: vector search: %w", err)
	}
	vectorLatency := time.Since(t0)

	results = filterResults(results, opt)
	candidates, chunkDocID, err := r.hydrateCandidates(ctx, results)
	if err != nil {
		return RetrievalBundle{}, err
	}

	t0 = time.Now()
	rerankCtx, rerankSpan := obs.StartSpan(ctx, "rerank")
	reranked, err := r.Reranker.Rerank(rerankCtx, question, candidates, rerankTopN)
	rerankSpan.End()
	if err != nil {
		return RetrievalBundle{}, fmt.Errorf("retrieve: rerank: %w", err)
	}
	rerankLatency := time.Since(t0)

	orderedChunks := make([]RetrievedChunk, 0, len(reranked))
	seedSet := map[string]bool{}
	var seeds []string
	for _, c := range reranked {
		docID := chunkDocID[c.ChunkID]
		orderedChunks = append(orderedChunks, RetrievedChunk{ChunkID: c.ChunkID, DocID: docID, Text: c.Text, Score: c.Score})
		if docID != "" && !seedSet[docID] {
			seedSet[docID] = true
			seeds = append(seeds, docID)
		}
	}

	t0 = time.Now()
	traverseCtx, traverseSpan := obs.StartSpan(ctx, "graph.traverse")
	var subgraph Subgraph
	if r.Graph != nil && len(seeds) > 0 {
		var mentioned []string
		for _, docID := range seeds {
			neighbors, err := r.Graph.Neighbors(traverseCtx, docID, "MENTIONS", r.perHopBudget())
			if err != nil {
				continue
			}
			mentioned = append(mentioned, neighbors...)
		}
		subgraph = expandGraph(traverseCtx, r.Graph, mentioned, r.maxHops(), r.perHopBudget())
	}
	traverseSpan.End()
	graphLatency := time.Since(t0)

	r.Metrics.ObserveHistogram("retrieve_query_latency_ms", float64(time.Since(queryStart).Milliseconds()), map[string]string{"stage": "total"})

	return RetrievalBundle{
		OrderedChunks: orderedChunks,
		Subgraph:      subgraph,
		Latency: LatencyBreakdown{
			Embed:  embedLatency,
			Vector: vectorLatency,
			Rerank: rerankLatency,
			Graph:  graphLatency,
		},
	}, nil
}

func (r *Retriever) maxHops() int {
	if r.MaxHops > 0 {
		return r.MaxHops
	}
	return defaultMaxHops
}

func (r *Retriever) perHopBudget() int {
	if r.PerHopBudget > 0 {
		return r.PerHopBudget
	}
	return defaultPerHopBudget
}

// filterResults applies the metadata constraints the vector backend's
// equality-only metadata filter can't express directly (source_types is a
// set membership test, ingested_after is a range test).
func filterResults(results []databases.VectorResult, opt Options) []databases.VectorResult {
	if len(opt.SourceTypes) == 0 && opt.IngestedAfter.IsZero() {
		return results
	}
	allowed := map[string]bool{}
	for _, st := range opt.SourceTypes {
		allowed[string(st)] = true
	}
	out := results[:0]
	for _, res := range results {
		if len(allowed) > 0 && !allowed[res.Metadata["source_type"]] {
			continue
		}
		if !opt.IngestedAfter.IsZero() {
			ts, err := time.Parse(time.RFC3339, res.Metadata["ingested_at"])
			if err == nil && ts.Before(opt.IngestedAfter) {
				continue
			}
		}
		out = append(out, res)
	}
	return out
}

// hydrateCandidates resolves each vector hit's chunk id back to its text via
// docstore, grouping lookups by doc_id to avoid one round trip per chunk.
// Deterministic tie-break is (score desc, chunk_id asc).
func (r *Retriever) hydrateCandidates(ctx context.Context, results []databases.VectorResult) ([]Candidate, map[string]string, error) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	chunkDocID := map[string]string{}
	byDoc := map[string][]databases.VectorResult{}
	for _, res := range results {
		docID := res.Metadata["doc_id"]
		chunkDocID[res.ID] = docID
		byDoc[docID] = append(byDoc[docID], res)
	}

	textByChunk := map[string]string{}
	for docID, hits := range byDoc {
		if docID == "" || r.Docs == nil {
			continue
		}
		chunks, err := r.Docs.ListChunks(ctx, docID)
		if err != nil {
			return nil, nil, fmt.Errorf("retrieve: list chunks for %q: %w", docID, err)
		}
		byID := make(map[string]model.Chunk, len(chunks))
		for _, c := range chunks {
			byID[c.ChunkID] = c
		}
		for _, hit := range hits {
			if c, ok := byID[hit.ID]; ok {
				textByChunk[hit.ID] = c.Text
			}
		}
	}

	candidates := make([]Candidate, len(results))
	for i, res := range results {
		candidates[i] = Candidate{ChunkID: res.ID, Text: textByChunk[res.ID], Score: res.Score}
	}
	return candidates, chunkDocID, nil
}
