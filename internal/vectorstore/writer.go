// Package vectorstore is the batched vector-write layer: it wraps a
// databases.VectorStore backend (Qdrant primary, pgvector alternate) with
// the fixed payload schema and batch-size policy the write path owns, so
// callers never construct a raw payload map by hand.
package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docgraph/internal/doerr"
	"docgraph/internal/model"
	"docgraph/internal/obs"
	"docgraph/internal/persistence/databases"
)

const (
	minBatchSize = 50
	maxBatchSize = 500
)

// ChunkEmbedding is one chunk's embedding plus the metadata needed to build
// its frozen payload.
type ChunkEmbedding struct {
	Chunk      model.Chunk
	Vector     []float32
	SourceType model.SourceType
	IngestedAt time.Time
	Namespace  string
	Tags       []string
}

// Writer batches chunk-embedding upserts against a VectorStore backend.
type Writer struct {
	store     databases.VectorStore
	batchSize int
	metrics   obs.Metrics
}

// Option configures a Writer.
type Option func(*Writer)

// WithBatchSize overrides the default batch size (clamped to [50,500]).
func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n < minBatchSize {
			n = minBatchSize
		}
		if n > maxBatchSize {
			n = maxBatchSize
		}
		w.batchSize = n
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// New constructs a Writer over store.
func New(store databases.VectorStore, opts ...Option) *Writer {
	w := &Writer{store: store, batchSize: 200, metrics: obs.NoopMetrics{}}
	for _, o := range opts {
		o(w)
	}
	return w
}

// payload builds the frozen payload schema: doc_id, source_type,
// ingested_at, chunk_ordinal, token_span, namespace, tags.
func payload(ce ChunkEmbedding) map[string]string {
	return map[string]string{
		"doc_id":        ce.Chunk.DocID,
		"source_type":   string(ce.SourceType),
		"ingested_at":   ce.IngestedAt.UTC().Format(time.RFC3339),
		"token_span":    fmt.Sprintf("[%d,%d]", ce.Chunk.TokenSpan[0], ce.Chunk.TokenSpan[1]),
		"namespace":     ce.Namespace,
		"chunk_ordinal": fmt.Sprintf("%d", ce.Chunk.Ordinal),
		"tags":          strings.Join(ce.Tags, ","),
	}
}

// UpsertBatch writes embeddings in fixed-size batches (50-500, tuned
// to network latency); a failure partway through a batch is reported with
// how many chunks preceded it so the caller can resume from there.
func (w *Writer) UpsertBatch(ctx context.Context, embeddings []ChunkEmbedding) error {
	ctx, span := obs.StartSpan(ctx, "vector.upsert")
	defer span.End()
	for start := 0; start < len(embeddings); start += w.batchSize {
		end := start + w.batchSize
		if end > len(embeddings) {
			end = len(embeddings)
		}
		t0 := time.Now()
		for i := start; i < end; i++ {
			ce := embeddings[i]
			if err := w.store.Upsert(ctx, ce.Chunk.ChunkID, ce.Vector, payload(ce)); err != nil {
				w.metrics.IncCounter("vectorstore_upsert_failures_total", map[string]string{})
				return doerr.New(doerr.ECodeVectorWrite, fmt.Errorf("vectorstore: upsert batch starting at %d, failed at chunk %d (%s): %w", start, i, ce.Chunk.ChunkID, err))
			}
		}
		w.metrics.ObserveHistogram("vectorstore_batch_latency_ms", float64(time.Since(t0).Milliseconds()), map[string]string{})
		w.metrics.IncCounter("vectorstore_chunks_upserted_total", map[string]string{})
	}
	return nil
}

// Delete removes a chunk's embedding by id.
func (w *Writer) Delete(ctx context.Context, chunkID string) error {
	if err := w.store.Delete(ctx, chunkID); err != nil {
		return doerr.New(doerr.ECodeVectorWrite, err)
	}
	return nil
}

// DeleteDocument removes every chunk embedding belonging to docID. The
// VectorStore interface only deletes by id, so callers that need document-
// scoped purge pass the chunk ids they already tracked in docstore.
func (w *Writer) DeleteDocument(ctx context.Context, chunkIDs []string) error {
	for _, id := range chunkIDs {
		if err := w.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Search runs a filtered kNN lookup, delegating directly to the
// backend; Writer exists for the write path but owns the one read path the retriever
// uses as well so both sides speak to the same frozen payload schema.
func (w *Writer) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]databases.VectorResult, error) {
	return w.store.SimilaritySearch(ctx, vector, k, filter)
}
