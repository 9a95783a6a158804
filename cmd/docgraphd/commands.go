package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"docgraph/internal/docstore"
	"docgraph/internal/extract/tiera"
	"docgraph/internal/extract/tierb"
	"docgraph/internal/extract/tierc"
	"docgraph/internal/health"
	"docgraph/internal/model"
	"docgraph/internal/retrieve"
	"docgraph/internal/synth"
	"docgraph/internal/vectorstore"
)

// cmdInit runs the pre-flight health check and bootstraps storage schemas.
// The backends create their own tables/collections in their constructors,
// so by the time newApp returned the schemas already exist; init's job is
// to verify every collaborator answers and to report what got provisioned.
// Re-running init against an initialized store is a no-op.
func (a *app) cmdInit(ctx context.Context) int {
	report := a.checker().Check(ctx)
	if a.jsonOut {
		printJSON(healthJSON(report))
	} else {
		renderHealth(report)
		if report.Healthy() {
			pterm.Success.Printf("initialized: %d node types, %d edge types registered\n",
				len(a.reg.AllNodeTypes()), len(a.reg.AllEdgeTypes()))
		}
	}
	if !report.Healthy() {
		return 1
	}
	return 0
}

// cmdIngest reads target (a file or a directory of files), normalizes each
// into a document, and runs the retrieval-path half of ingestion: chunk,
// embed, vector upsert, chunk bookkeeping. Extraction is left to `extract
// pending` / the serve-mode worker pool.
func (a *app) cmdIngest(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "max documents to ingest")
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: docgraphd ingest <source_type> <target> [--limit N]")
		return 1
	}
	sourceType := model.SourceType(args[0])
	target := args[1]
	if err := fs.Parse(args[2:]); err != nil {
		return 1
	}

	paths, err := collectPaths(target, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		return 1
	}

	type ingested struct {
		JobID string `json:"job_id"`
		DocID string `json:"doc_id"`
	}
	var results []ingested
	for _, p := range paths {
		jobID, docID, err := a.ingestFile(ctx, sourceType, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest %s: %v\n", p, err)
			return 2
		}
		results = append(results, ingested{JobID: jobID, DocID: docID})
	}

	if a.jsonOut {
		printJSON(results)
	} else {
		for _, r := range results {
			fmt.Println(r.JobID)
		}
	}
	return 0
}

func (a *app) ingestFile(ctx context.Context, sourceType model.SourceType, path string) (jobID, docID string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	docID = string(sourceType) + ":" + hashID(path)

	doc := model.NormalizedDocument{
		DocID:       docID,
		SourceType:  sourceType,
		SourceURL:   path,
		IngestedAt:  time.Now().UTC(),
		ContentHash: hash,
		Text:        string(data),
	}
	// Compose and proxy configs arrive as one embedded block so Tier A's
	// shape matchers see them the same way a web reader's fenced block
	// would arrive.
	switch sourceType {
	case model.SourceDockerCompose:
		doc.SubStructures = []model.SubStructure{{Kind: "code_block", Language: "yaml", Content: string(data)}}
	case model.SourceSWAG:
		doc.SubStructures = []model.SubStructure{{Kind: "code_block", Language: "nginx", Content: string(data)}}
	}

	if err := a.docs.UpsertDocument(ctx, doc); err != nil {
		return "", "", err
	}
	jobID, err = a.docs.RecordIngestionJob(ctx, docID, sourceType, path)
	if err != nil {
		return "", "", err
	}

	chunks := a.chunks.Chunk(docID, doc.Text)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := a.embed.EmbedBatch(ctx, texts)
		if err != nil {
			return "", "", err
		}
		embeddings := make([]vectorstore.ChunkEmbedding, len(chunks))
		for i := range chunks {
			chunks[i].EmbeddingVectorID = chunks[i].ChunkID
			embeddings[i] = vectorstore.ChunkEmbedding{
				Chunk:      chunks[i],
				Vector:     vectors[i],
				SourceType: sourceType,
				IngestedAt: doc.IngestedAt,
			}
		}
		if err := a.vecW.UpsertBatch(ctx, embeddings); err != nil {
			return "", "", err
		}
		if err := a.docs.InsertChunks(ctx, docID, chunks); err != nil {
			return "", "", err
		}
	}
	return jobID, docID, nil
}

func (a *app) cmdExtract(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: docgraphd extract pending|reprocess|status")
		return 1
	}
	switch args[0] {
	case "pending":
		return a.extractPending(ctx)
	case "reprocess":
		fs := flag.NewFlagSet("reprocess", flag.ContinueOnError)
		since := fs.Duration("since", 24*time.Hour, "reset documents ingested within this window")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		n, err := a.pipe.Reprocess(ctx, *since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reprocess: %v\n", err)
			return 2
		}
		if a.jsonOut {
			printJSON(map[string]int{"reset": n})
		} else {
			pterm.Info.Printf("%d documents reset to pending\n", n)
		}
		return a.extractPending(ctx)
	case "status":
		return a.extractStatus(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown extract subcommand %q\n", args[0])
		return 1
	}
}

// extractPending drives every document in a non-terminal state through the
// cascade, one pass per state so a document that advances mid-run is picked
// up again before the command exits.
func (a *app) extractPending(ctx context.Context) int {
	states := []model.ExtractionState{
		model.StatePending, model.StateTierADone, model.StateTierBDone, model.StateTierCDone,
	}
	processed, failed := 0, 0
	for _, state := range states {
		for {
			ids, err := a.docs.ListByState(ctx, state, 100)
			if err != nil {
				fmt.Fprintf(os.Stderr, "extract: %v\n", err)
				return 2
			}
			if len(ids) == 0 {
				break
			}
			for _, id := range ids {
				if err := a.pipe.ProcessDocument(ctx, id); err != nil {
					failed++
				} else {
					processed++
				}
			}
		}
	}
	if a.jsonOut {
		printJSON(map[string]int{"processed": processed, "failed": failed})
	} else {
		pterm.Info.Printf("%d documents processed, %d failed\n", processed, failed)
	}
	if failed > 0 {
		return 2
	}
	return 0
}

func (a *app) extractStatus(ctx context.Context) int {
	counts, err := a.docs.StateCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 2
	}
	dlqDepth := 0
	if a.dlq != nil {
		dlqDepth, _ = a.dlq.PendingDepth(ctx)
	}

	if a.jsonOut {
		out := map[string]any{"states": counts, "dlq_pending": dlqDepth}
		printJSON(out)
		return 0
	}
	rows := pterm.TableData{{"state", "documents"}}
	for _, s := range []model.ExtractionState{
		model.StatePending, model.StateTierADone, model.StateTierBDone,
		model.StateTierCDone, model.StateCompleted, model.StateFailed,
	} {
		rows = append(rows, []string{string(s), fmt.Sprintf("%d", counts[s])})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	pterm.Info.Printf("dlq pending: %d\n", dlqDepth)
	return 0
}

func (a *app) cmdQuery(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	sources := fs.String("sources", "", "comma-separated source types")
	after := fs.String("after", "", "only chunks ingested after YYYY-MM-DD")
	topK := fs.Int("top-k", 0, "vector search candidates")
	rerankTopN := fs.Int("rerank-top-n", 0, "chunks surviving rerank")
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, `usage: docgraphd query "<question>" [--sources a,b] [--after YYYY-MM-DD] [--top-k N] [--rerank-top-n N]`)
		return 1
	}
	question := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	opt := retrieve.Options{TopK: *topK, RerankTopN: *rerankTopN}
	if *sources != "" {
		for _, s := range strings.Split(*sources, ",") {
			if s = strings.TrimSpace(s); s != "" {
				opt.SourceTypes = append(opt.SourceTypes, model.SourceType(s))
			}
		}
	}
	if *after != "" {
		t, err := time.Parse("2006-01-02", *after)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad --after date %q: %v\n", *after, err)
			return 1
		}
		opt.IngestedAfter = t
	}

	bundle, err := a.retr.Retrieve(ctx, question, opt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retrieve: %v\n", err)
		return 2
	}
	answer, err := a.synth.Answer(ctx, question, bundle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "synthesize: %v\n", err)
		return 2
	}

	if a.jsonOut {
		type srcJSON struct {
			Index    int    `json:"citation_index"`
			URLOrDoc string `json:"url_or_doc_id"`
		}
		out := struct {
			Answer  string         `json:"answer"`
			Sources []srcJSON      `json:"sources"`
			Latency map[string]int `json:"latency_ms"`
		}{Answer: answer.Text, Latency: latencyMS(answer.Latency)}
		for _, s := range answer.Sources {
			out.Sources = append(out.Sources, srcJSON{Index: s.Index, URLOrDoc: s.URLOrDoc})
		}
		printJSON(out)
		return 0
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println()
		for _, s := range answer.Sources {
			fmt.Printf("  [%d] %s\n", s.Index, s.URLOrDoc)
		}
	}
	return 0
}

func (a *app) cmdStatus(ctx context.Context) int {
	report := a.checker().Check(ctx)
	counts, _ := a.docs.StateCounts(ctx)
	dlqDepth := 0
	if a.dlq != nil {
		dlqDepth, _ = a.dlq.PendingDepth(ctx)
	}

	if a.jsonOut {
		printJSON(map[string]any{
			"healthy":     report.Healthy(),
			"checks":      healthJSON(report),
			"states":      counts,
			"dlq_pending": dlqDepth,
		})
	} else {
		renderHealth(report)
		pterm.Info.Printf("dlq pending: %d\n", dlqDepth)
	}
	if !report.Healthy() {
		return 2
	}
	return 0
}

func (a *app) cmdList(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] != "documents" {
		fmt.Fprintln(os.Stderr, "usage: docgraphd list documents [--source-type X] [--state Y] [--limit N] [--offset N]")
		return 1
	}
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	sourceType := fs.String("source-type", "", "filter by source type")
	state := fs.String("state", "", "filter by extraction state")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "page offset")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	docs, err := a.docs.ListDocuments(ctx, docstore.DocFilter{
		SourceType: model.SourceType(*sourceType),
		State:      model.ExtractionState(*state),
		Limit:      *limit,
		Offset:     *offset,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 2
	}

	if a.jsonOut {
		printJSON(docs)
		return 0
	}
	rows := pterm.TableData{{"doc_id", "source_type", "state", "ingested_at"}}
	for _, d := range docs {
		rows = append(rows, []string{d.DocID, string(d.SourceType), string(d.State), d.IngestedAt.Format(time.RFC3339)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	return 0
}

// cmdPurge removes exactly one document's contribution: its edges under the
// current Tier A/B/C extractor versions, its chunk vectors, and its
// relational rows. Edges written under older extractor versions are not
// removed.
func (a *app) cmdPurge(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: docgraphd purge <doc_id>")
		return 1
	}
	docID := args[0]
	_, _, ok, err := a.docs.GetDocument(ctx, docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 2
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "purge: unknown doc_id %q\n", docID)
		return 1
	}

	removed := 0
	for _, v := range []string{tiera.Version, tierb.Version, tierc.Version} {
		n, err := a.graphW.Purge(ctx, docID, v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "purge edges: %v\n", err)
			return 2
		}
		removed += n
	}

	chunks, err := a.docs.ListChunks(ctx, docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 2
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	if err := a.vecW.DeleteDocument(ctx, ids); err != nil {
		fmt.Fprintf(os.Stderr, "purge vectors: %v\n", err)
		return 2
	}
	if err := a.docs.PurgeDocument(ctx, docID); err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 2
	}

	if a.jsonOut {
		printJSON(map[string]any{"doc_id": docID, "edges_removed": removed, "chunks_removed": len(ids)})
	} else {
		pterm.Success.Printf("purged %s: %d edges, %d chunks\n", docID, removed, len(ids))
	}
	return 0
}

func (a *app) checker() health.Checker {
	c := health.Checker{
		Docs:     a.docs,
		Graph:    a.mgr.Graph,
		Vectors:  a.mgr.Vector,
		Embedder: a.embed,
	}
	if a.cfg.LLM.BaseURL != "" {
		c.LLM = a.llm
	}
	if a.cache != nil {
		c.Cache = a.cache
	}
	if rp, ok := a.retr.Reranker.(health.RerankPinger); ok {
		c.Reranker = rp
	}
	return c
}

func collectPaths(target string, limit int) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{target}, nil
	}
	var out []string
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func hashID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func latencyMS(l synth.LatencyBreakdown) map[string]int {
	return map[string]int{
		"embed":     int(l.Embed.Milliseconds()),
		"vector":    int(l.Vector.Milliseconds()),
		"rerank":    int(l.Rerank.Milliseconds()),
		"graph":     int(l.Graph.Milliseconds()),
		"synthesis": int(l.Synthesis.Milliseconds()),
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type healthCheckJSON struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Err       string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func healthJSON(r health.Report) []healthCheckJSON {
	out := make([]healthCheckJSON, 0, len(r.Checks))
	for _, c := range r.Checks {
		out = append(out, healthCheckJSON{Name: c.Name, OK: c.OK, Err: c.Err, LatencyMS: c.Latency.Milliseconds()})
	}
	return out
}

func renderHealth(r health.Report) {
	rows := pterm.TableData{{"collaborator", "ok", "latency", "error"}}
	for _, c := range r.Checks {
		ok := "yes"
		if !c.OK {
			ok = "NO"
		}
		rows = append(rows, []string{c.Name, ok, c.Latency.Round(time.Millisecond).String(), c.Err})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
