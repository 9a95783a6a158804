// Package retrieve is the hybrid retriever: embed the question, run a
// metadata-filtered kNN search, cross-encoder rerank the candidates, and
// expand the surviving chunks with a bounded, priority-ordered graph walk.
package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// Candidate is one chunk under consideration for reranking.
type Candidate struct {
	ChunkID string
	Text    string
	Score   float64
}

// Reranker reorders candidates by relevance to query and returns at most
// topN of them. Implementations must not invent chunk ids not present in
// the input.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Candidate, error)
}

// NoopReranker keeps the kNN ordering and truncates to topN, used when no
// reranker endpoint is configured.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, candidates []Candidate, topN int) ([]Candidate, error) {
	if topN > 0 && topN < len(candidates) {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

// Ping always succeeds: there is no endpoint to check.
func (NoopReranker) Ping(context.Context) error { return nil }

// crossEncoderRequest is the (query, passages) payload the cross-encoder
// server expects.
type crossEncoderRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type crossEncoderResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type crossEncoderResponse struct {
	Model   string               `json:"model"`
	Object  string               `json:"object"`
	Results []crossEncoderResult `json:"results"`
}

// HTTPReranker calls a llama.cpp-compatible cross-encoder reranker endpoint.
type HTTPReranker struct {
	URL    string
	Model  string
	Client *http.Client
}

// NewHTTPReranker constructs a reranker client over url. If client is nil,
// http.DefaultClient is used.
func NewHTTPReranker(url, model string, client *http.Client) *HTTPReranker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReranker{URL: url, Model: model, Client: client}
}

// Ping issues a minimal one-document rerank call to confirm the endpoint
// answers, for the health surface. A zero-
// document request would short-circuit before any network call, so this
// sends a single throwaway document instead.
func (r *HTTPReranker) Ping(ctx context.Context) error {
	_, err := r.Rerank(ctx, "ping", []Candidate{{ChunkID: "ping", Text: "ping"}}, 1)
	return err
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	reqBody, err := json.Marshal(crossEncoderRequest{Model: r.Model, Query: query, TopN: topN, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("retrieve: rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("retrieve: rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve: rerank call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("retrieve: rerank failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("retrieve: decode rerank response: %w", err)
	}

	scored := make([]Candidate, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		c := candidates[res.Index]
		c.Score = res.RelevanceScore
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})
	if topN > 0 && topN < len(scored) {
		scored = scored[:topN]
	}
	return scored, nil
}
