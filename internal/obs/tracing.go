package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the shared tracer every pipeline component emits spans on. The
// span trees are fixed: ingest.doc -> extract.tierA/B/C -> graph.write ->
// vector.upsert for ingestion, and query -> embed -> vector.search ->
// rerank -> graph.traverse -> synth for queries.
var tracer = otel.Tracer("docgraph")

// StartSpan opens a child span named name carrying the given key/value
// baggage (job_id, doc_id). Callers must End() the returned span.
func StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
