// Package health aggregates collaborator reachability checks for the
// `init` pre-flight and `status` command.
// Grounded on internal/persistence/databases/factory.go's ping-with-
// timeout pattern (newPgPool's 3s connect-time ping), generalized to every
// collaborator instead of just the Postgres pool.
package health

import (
	"context"
	"time"

	"docgraph/internal/docstore"
	"docgraph/internal/embedder"
	"docgraph/internal/llmclient"
	"docgraph/internal/persistence/databases"
)

const pingTimeout = 3 * time.Second

// Status is one collaborator's reachability result.
type Status struct {
	Name    string
	OK      bool
	Err     string
	Latency time.Duration
}

// Report is the full aggregated health snapshot.
type Report struct {
	Checks []Status
}

// Healthy reports whether every check in the report succeeded.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Checker pings the configured collaborators. Any field left nil is
// skipped, so callers can build a partial checker (e.g. during `init`
// before the cache is provisioned).
type Checker struct {
	Docs     docstore.Interface
	Graph    databases.GraphDB
	Vectors  databases.VectorStore
	Cache    CachePinger
	LLM      *llmclient.Client
	Embedder embedder.Embedder
	Reranker RerankPinger
}

// CachePinger is satisfied by internal/extract/cache.Cache.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// RerankPinger is satisfied by a reranker that can report reachability
// without spending a real rerank call.
type RerankPinger interface {
	Ping(ctx context.Context) error
}

// Check runs every configured collaborator's reachability probe and
// returns the aggregated report. Checks run sequentially since this is an
// infrequent operator-facing call (init/status), not a hot path.
func (c Checker) Check(ctx context.Context) Report {
	var report Report
	probe := func(name string, fn func(context.Context) error) {
		if fn == nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		t0 := time.Now()
		err := fn(cctx)
		s := Status{Name: name, OK: err == nil, Latency: time.Since(t0)}
		if err != nil {
			s.Err = err.Error()
		}
		report.Checks = append(report.Checks, s)
	}

	if c.Docs != nil {
		probe("docstore", c.Docs.Ping)
	}
	if c.Graph != nil {
		probe("graphstore", func(ctx context.Context) error {
			_, err := c.Graph.NodeExists(ctx, "", "__health_check__")
			return err
		})
	}
	if c.Vectors != nil {
		probe("vectorstore", func(ctx context.Context) error {
			_, err := c.Vectors.SimilaritySearch(ctx, nil, 1, nil)
			return err
		})
	}
	if c.Cache != nil {
		probe("cache", c.Cache.Ping)
	}
	if c.LLM != nil {
		probe("llm", c.LLM.Ping)
	}
	if c.Embedder != nil {
		probe("embedder", c.Embedder.Ping)
	}
	if c.Reranker != nil {
		probe("reranker", c.Reranker.Ping)
	}

	return report
}
