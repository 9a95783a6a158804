package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"docgraph/internal/model"
)

const (
	heartbeatInterval = 10 * time.Second
	reclaimTimeout    = 90 * time.Second
)

// resumableStates are the non-terminal states a worker pool re-drives on
// every poll: a document left mid-cascade by a crashed worker resumes from
// its last completed tier rather than restarting at Tier A.
var resumableStates = []model.ExtractionState{
	model.StatePending, model.StateTierADone, model.StateTierBDone, model.StateTierCDone,
}

// Pool is the worker-task scheduler: N workers pull document ids from
// docstore and drive them through Pipeline.ProcessDocument. There is no
// shared mutable state between workers beyond the in-flight heartbeat
// tracker; all other communication is by the docstore's own state column,
// which is safe for concurrent claims because SetState is the only mutator.
type Pool struct {
	pipeline *Pipeline
	workers  int

	// MaxInFlight caps how many documents may be mid-cascade at once; new
	// submissions beyond the cap stay queued in docstore until a slot
	// frees. Zero means no cap.
	MaxInFlight int

	mu       sync.Mutex
	inFlight map[string]time.Time
}

// NewPool constructs a worker pool of the given size over pipeline.
func NewPool(pipeline *Pipeline, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		pipeline: pipeline,
		workers:  workers,
		inFlight: make(map[string]time.Time),
	}
}

// Run drives the pool until ctx is canceled, polling docstore for
// resumable documents every pollInterval (default 2s) and heartbeat-
// reaping any claim stale for more than reclaimTimeout.
func (p *Pool) Run(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	jobs := make(chan string, p.workers*4)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx, jobs, &wg)
	}

	go p.reapStaleHeartbeats(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.enqueuePending(ctx, jobs)
		}
	}
}

func (p *Pool) enqueuePending(ctx context.Context, jobs chan<- string) {
	for _, state := range resumableStates {
		ids, err := p.pipeline.Docs.ListByState(ctx, state, 100)
		if err != nil {
			log.Printf("orchestrator: ListByState(%s) failed: %v", state, err)
			continue
		}
		for _, id := range ids {
			if p.atCapacity() {
				return
			}
			if p.isInFlight(id) {
				continue
			}
			select {
			case jobs <- id:
			default:
				// queue full; pick this document up on the next poll tick.
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context, jobs <-chan string, wg *sync.WaitGroup) {
	defer wg.Done()
	for id := range jobs {
		p.claim(id)
		if err := p.pipeline.ProcessDocument(ctx, id); err != nil {
			log.Printf("orchestrator: document %s failed: %v", id, err)
		}
		p.release(id)
	}
}

func (p *Pool) claim(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight[docID] = time.Now()
}

func (p *Pool) release(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, docID)
}

func (p *Pool) atCapacity() bool {
	if p.MaxInFlight <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight) >= p.MaxInFlight
}

func (p *Pool) isInFlight(docID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[docID]
	return ok
}

// reapStaleHeartbeats logs any claim older than reclaimTimeout. In a
// single-process deployment this is diagnostic only — the stuck worker
// still owns the goroutine — but it marks the document `timeout_soft`
// via an event so `extract status` surfaces it, and a multi-instance
// deployment substituting a shared claim store (e.g. Redis) gets the
// same reaper for free since it only depends on Pool's claim timing map.
func (p *Pool) reapStaleHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			now := time.Now()
			for id, claimedAt := range p.inFlight {
				if now.Sub(claimedAt) > reclaimTimeout {
					log.Printf("orchestrator: document %s has not completed in %s, marking timeout_soft", id, reclaimTimeout)
					_ = p.pipeline.Docs.SetState(ctx, id, p.currentState(ctx, id), "timeout_soft: no heartbeat for 90s")
				}
			}
			p.mu.Unlock()
		}
	}
}

func (p *Pool) currentState(ctx context.Context, docID string) model.ExtractionState {
	_, state, ok, err := p.pipeline.Docs.GetDocument(ctx, docID)
	if err != nil || !ok {
		return model.StateFailed
	}
	return state
}
