package orchestrator

import (
	"context"
	"log"
	"strings"
	"time"

	"docgraph/internal/docstore"
	"docgraph/internal/extract/cache"
)

// RunDLQReaper periodically drains dlq:pending and feeds eligible items
// back into the cascade: a quarantined document whose backoff has elapsed
// is reset to pending (the worker pool then re-drives it). Items past
// their retry budget never reappear here — Push already moved them to
// dlq:failed. Runs until ctx is canceled.
func RunDLQReaper(ctx context.Context, dlq *cache.DLQ, docs docstore.Interface, interval time.Duration) {
	if dlq == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapOnce(ctx, dlq, docs)
		}
	}
}

func reapOnce(ctx context.Context, dlq *cache.DLQ, docs docstore.Interface) {
	keys, err := dlq.ScanPending(ctx)
	if err != nil {
		log.Printf("orchestrator: dlq scan: %v", err)
		return
	}
	for _, redisKey := range keys {
		key := strings.TrimPrefix(redisKey, "dlq:pending:")
		item, ok := dlq.Get(ctx, key)
		if !ok {
			continue
		}
		if time.Since(item.LastAttempt) < cache.NextBackoff(item.Attempts) {
			continue
		}

		// Only document-level items are re-driven whole; window-level items
		// ride along when their document re-runs Tier C.
		docID, isDoc := strings.CutPrefix(key, "document:")
		if !isDoc {
			continue
		}

		// Initiating a retry spends one attempt. If that was the last one,
		// Push has moved the item to dlq:failed and the document stays down.
		escalated, err := dlq.Push(ctx, key, item.CauseCode, item.PayloadHead, item.Payload)
		if err != nil {
			log.Printf("orchestrator: dlq reaper push %s: %v", key, err)
			continue
		}
		if escalated {
			continue
		}
		if err := docs.ReprocessDocument(ctx, docID); err != nil {
			log.Printf("orchestrator: dlq reaper reset %s: %v", docID, err)
		}
	}
}
