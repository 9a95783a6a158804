package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"docgraph/internal/docstore"
	"docgraph/internal/model"
	"docgraph/internal/orchestrator"
	"docgraph/internal/retrieve"
)

const idempotencyTTL = 24 * time.Hour

// cmdServe runs the daemon: the extraction worker pool, the optional
// Kafka-fed job consumer, and the thin HTTP mirror of the CLI verbs.
func (a *app) cmdServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8088", "listen address")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := orchestrator.NewPool(a.pipe, a.cfg.Kafka.WorkerCount)
	pool.MaxInFlight = a.cfg.Thresholds.InFlightDocCap
	go func() {
		if err := pool.Run(ctx, 0); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("worker pool exited")
		}
	}()

	if a.dlq != nil {
		go orchestrator.RunDLQReaper(ctx, a.dlq, a.docs, time.Minute)
	}

	if len(a.cfg.Kafka.Brokers) > 0 {
		producer := &kafka.Writer{
			Addr:     kafka.TCP(a.cfg.Kafka.Brokers...),
			Balancer: &kafka.LeastBytes{},
		}
		go func() {
			err := orchestrator.StartKafkaConsumer(ctx,
				a.cfg.Kafka.Brokers, a.cfg.Kafka.GroupID, a.cfg.Kafka.JobTopic,
				producer, a.pipe, a.dedupe, a.cfg.Kafka.WorkerCount, a.cfg.Redis.DedupeTTL)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("kafka consumer exited")
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/ingest", a.handleIngest)
	mux.HandleFunc("/query", a.handleQuery)
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/documents", a.handleDocuments)

	srv := &http.Server{Addr: *addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", *addr).Msg("docgraphd serving")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
			return 2
		}
		return 0
	}
}

// handleIngest is the HTTP twin of `ingest`. An Idempotency-Key header
// dedups repeated submissions within a 24-hour window: a replay returns
// the original job id with 200 instead of re-ingesting.
func (a *app) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SourceType string `json:"source_type"`
		Target     string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceType == "" || req.Target == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && a.dedupe != nil {
		if prev, err := a.dedupe.Get(r.Context(), key); err == nil && prev != "" {
			writeJSON(w, http.StatusOK, map[string]string{"job_id": prev, "replayed": "true"})
			return
		}
	}

	jobID, docID, err := a.ingestFile(r.Context(), model.SourceType(req.SourceType), req.Target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if key != "" && a.dedupe != nil {
		_ = a.dedupe.Set(r.Context(), key, jobID, idempotencyTTL)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "doc_id": docID})
}

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Question   string   `json:"question"`
		Sources    []string `json:"sources,omitempty"`
		After      string   `json:"after,omitempty"`
		TopK       int      `json:"top_k,omitempty"`
		RerankTopN int      `json:"rerank_top_n,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	opt := retrieve.Options{TopK: req.TopK, RerankTopN: req.RerankTopN}
	for _, s := range req.Sources {
		opt.SourceTypes = append(opt.SourceTypes, model.SourceType(s))
	}
	if req.After != "" {
		t, err := time.Parse("2006-01-02", req.After)
		if err != nil {
			http.Error(w, "bad after date", http.StatusBadRequest)
			return
		}
		opt.IngestedAfter = t
	}

	bundle, err := a.retr.Retrieve(r.Context(), req.Question, opt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	answer, err := a.synth.Answer(r.Context(), req.Question, bundle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

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
	writeJSON(w, http.StatusOK, out)
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := a.checker().Check(r.Context())
	counts, _ := a.docs.StateCounts(r.Context())
	dlqDepth := 0
	if a.dlq != nil {
		dlqDepth, _ = a.dlq.PendingDepth(r.Context())
	}
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"healthy":     report.Healthy(),
		"checks":      healthJSON(report),
		"states":      counts,
		"dlq_pending": dlqDepth,
	})
}

func (a *app) handleDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	docs, err := a.docs.ListDocuments(r.Context(), docstore.DocFilter{
		SourceType: model.SourceType(q.Get("source_type")),
		State:      model.ExtractionState(q.Get("state")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
