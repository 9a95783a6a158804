// docgraphd is the docgraph daemon and operator CLI: it wires the tiered
// extraction cascade, the graph and vector writers, and the hybrid query
// engine behind the stable command surface (init / ingest / extract /
// query / status / list / purge / serve).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jackc/pgx/v5/pgxpool"

	"docgraph/internal/chunker"
	"docgraph/internal/config"
	"docgraph/internal/docstore"
	"docgraph/internal/embedder"
	"docgraph/internal/extract/cache"
	"docgraph/internal/extract/tiera"
	"docgraph/internal/extract/tierb"
	"docgraph/internal/extract/tierc"
	"docgraph/internal/graphstore"
	"docgraph/internal/llmclient"
	"docgraph/internal/obs"
	"docgraph/internal/observability"
	"docgraph/internal/orchestrator"
	"docgraph/internal/persistence/databases"
	"docgraph/internal/retrieve"
	"docgraph/internal/schema"
	"docgraph/internal/synth"
	"docgraph/internal/vectorstore"
)

const usage = `usage: docgraphd <command> [args]

commands:
  init                                     create constraints and collection
  ingest <source_type> <target> [--limit N]  enqueue an ingest job
  extract pending                          drive pending documents
  extract reprocess --since <duration>     reset and re-drive recent documents
  extract status                           live extraction metrics
  query "<question>" [flags]               run one hybrid query
  status                                   collaborator health and queue depths
  list documents [flags]                   paginated document listing
  purge <doc_id>                           remove a document and its edges
  serve [--addr :8088]                     run the daemon (HTTP + workers)

global flags:
  --json    machine-readable output

exit codes: 0 success, 1 user error, 2 internal failure`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	jsonOut := false
	filtered := args[:0:0]
	for _, a := range args {
		if a == "--json" {
			jsonOut = true
			continue
		}
		filtered = append(filtered, a)
	}
	args = filtered

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 2
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	a, err := newApp(ctx, cfg, jsonOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		return 2
	}
	defer a.close()

	switch args[0] {
	case "init":
		return a.cmdInit(ctx)
	case "ingest":
		return a.cmdIngest(ctx, args[1:])
	case "extract":
		return a.cmdExtract(ctx, args[1:])
	case "query":
		return a.cmdQuery(ctx, args[1:])
	case "status":
		return a.cmdStatus(ctx)
	case "list":
		return a.cmdList(ctx, args[1:])
	case "purge":
		return a.cmdPurge(ctx, args[1:])
	case "serve":
		return a.cmdServe(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", args[0], usage)
		return 1
	}
}

// app holds the wired collaborators every command draws from. Collaborators
// whose endpoints are not configured stay nil (cache, dlq, dedupe) and the
// commands that use them skip that step instead of panicking.
type app struct {
	cfg     config.Config
	jsonOut bool

	docs    docstore.Interface
	docsPg  *docstore.Store
	mgr     databases.Manager
	reg     *schema.Registry
	chunks  *chunker.Chunker
	embed   embedder.Embedder
	cache   *cache.Cache
	dlq     *cache.DLQ
	graphW  *graphstore.Writer
	vecW    *vectorstore.Writer
	retr    *retrieve.Retriever
	synth   *synth.Synthesizer
	llm     *llmclient.Client
	pipe    *orchestrator.Pipeline
	dedupe  orchestrator.DedupeStore
	metrics obs.Metrics
}

func newApp(ctx context.Context, cfg config.Config, jsonOut bool) (*app, error) {
	a := &app{cfg: cfg, jsonOut: jsonOut, metrics: obs.NewOtelMetrics()}

	reg := schema.New()
	if err := schema.RegisterKernel(reg); err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}
	a.reg = reg

	mgr, err := databases.NewManager(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("databases: %w", err)
	}
	a.mgr = mgr

	if dsn := cfg.DB.DocstoreDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("docstore pool: %w", err)
		}
		store, err := docstore.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("docstore: %w", err)
		}
		a.docs = store
		a.docsPg = store
	} else {
		a.docs = docstore.NewMemoryStore()
	}

	a.chunks, err = chunker.New()
	if err != nil {
		return nil, err
	}

	if cfg.Embedder.BaseURL != "" {
		a.embed = embedder.NewClient(cfg.Embedder, cfg.Embedder.Dimensions)
	} else {
		a.embed = embedder.NewDeterministic(cfg.DB.Vector.Dimensions, true, 1)
	}

	if cfg.Redis.Addr != "" {
		if a.cache, err = cache.New(cfg.Redis.Addr); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		if a.dlq, err = cache.NewDLQ(cfg.Redis.Addr); err != nil {
			return nil, fmt.Errorf("dlq: %w", err)
		}
		if a.dedupe, err = orchestrator.NewRedisDedupeStore(cfg.Redis.Addr); err != nil {
			return nil, fmt.Errorf("dedupe: %w", err)
		}
	}

	a.graphW = graphstore.New(mgr.Graph,
		graphstore.WithBatchSize(cfg.DB.Graph.BatchSize),
		graphstore.WithSplitDepth(cfg.Thresholds.GraphBatchSplitDepth),
		graphstore.WithAcceptanceThreshold(cfg.Thresholds.EdgeAcceptConfidence),
		graphstore.WithMetrics(a.metrics))
	a.vecW = vectorstore.New(mgr.Vector,
		vectorstore.WithBatchSize(cfg.DB.Vector.BatchMax),
		vectorstore.WithMetrics(a.metrics))

	httpClient := observability.NewHTTPClient(nil)
	extractLLM := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.ExtractModel, httpClient)
	a.llm = extractLLM
	synthLLM := extractLLM
	if cfg.LLM.SynthModel != cfg.LLM.ExtractModel {
		synthLLM = llmclient.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.SynthModel, httpClient)
	}

	var reranker retrieve.Reranker = retrieve.NoopReranker{}
	if cfg.Reranker.BaseURL != "" {
		reranker = retrieve.NewHTTPReranker(cfg.Reranker.BaseURL, "", httpClient)
	}
	a.retr = retrieve.New(a.embed, a.vecW, mgr.Graph, a.docs, reranker, a.metrics)
	a.retr.MaxHops = cfg.Thresholds.GraphHopBudget
	a.retr.PerHopBudget = cfg.Thresholds.GraphPerHopNodeBudget
	a.synth = synth.New(synthLLM)

	tcOpts := []tierc.Option{tierc.WithMetrics(a.metrics)}
	if a.cache != nil {
		tcOpts = append(tcOpts, tierc.WithCache(a.cache))
	}
	a.pipe = orchestrator.NewPipeline(
		a.docs,
		tiera.New(tiera.WithMetrics(a.metrics)),
		tierb.New(tierb.WithMetrics(a.metrics)),
		tierc.New(extractLLM, reg, tcOpts...),
		a.graphW,
		a.dlq,
		a.metrics,
	)
	a.pipe.Politeness = orchestrator.NewPoliteness(
		cfg.Thresholds.PolitenessRatePerSecond, cfg.Thresholds.PolitenessBurst)

	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.dlq != nil {
		_ = a.dlq.Close()
	}
	if d, ok := a.dedupe.(*orchestrator.RedisDedupeStore); ok && d != nil {
		_ = d.Close()
	}
	if a.docsPg != nil {
		a.docsPg.Close()
	}
	a.mgr.Close()
}
