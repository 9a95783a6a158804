package orchestrator

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Politeness is the per-source-domain token bucket from the concurrency
// model: any tier work that re-fetches content from an upstream the reader
// subsystem shares must take a token for that domain first. Default rate is
// 0.5 tokens/sec with burst 2.
type Politeness struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewPoliteness constructs a token bucket set with the given refill rate
// (tokens per second) and burst capacity. Non-positive arguments fall back
// to the 0.5 req/s, burst 2 defaults.
func NewPoliteness(ratePerSecond float64, burst int) *Politeness {
	if ratePerSecond <= 0 {
		ratePerSecond = 0.5
	}
	if burst <= 0 {
		burst = 2
	}
	return &Politeness{
		rate:    ratePerSecond,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
	}
}

// Domain extracts the politeness key from a source URL: the lowercased
// host, or "" when the URL has none (file-based sources are not throttled).
func Domain(sourceURL string) string {
	if sourceURL == "" {
		return ""
	}
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Acquire blocks until a token is available for domain or ctx is done.
// An empty domain is a no-op so callers can pass Domain(doc.SourceURL)
// unconditionally.
func (p *Politeness) Acquire(ctx context.Context, domain string) error {
	if p == nil || domain == "" {
		return nil
	}
	for {
		wait := p.take(domain)
		if wait <= 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

// take consumes one token if available and returns 0, else returns how long
// until the next token accrues.
func (p *Politeness) take(domain string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	b, ok := p.buckets[domain]
	if !ok {
		b = &bucket{tokens: p.burst, last: now}
		p.buckets[domain] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * p.rate
	if b.tokens > p.burst {
		b.tokens = p.burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	deficit := 1 - b.tokens
	return time.Duration(deficit / p.rate * float64(time.Second))
}
