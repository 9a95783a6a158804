package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// IngestEnvelope is one push-delivered notification that a document has
// already been normalized and saved to docstore and is ready for the
// extraction cascade — an alternate job source to Pool's docstore poll,
// for deployments that prefer a message queue over polling.
type IngestEnvelope struct {
	DocID          string `json:"doc_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// HandleIngestMessage decodes one message and drives its document through
// pipeline.ProcessDocument. Malformed envelopes and messages missing doc_id
// are permanent failures: they are logged and dropped (nil is returned so
// the caller commits/acks the message) rather than retried forever.
// ProcessDocument's own error is returned unchanged so the caller can apply
// its own redelivery policy; ProcessDocument has already recorded the
// failure against the document's state and DLQ before returning it.
func HandleIngestMessage(ctx context.Context, pipeline *Pipeline, dedupe DedupeStore, dedupeTTL time.Duration, raw []byte) error {
	var env IngestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("orchestrator: malformed ingest message, dropping: %v", err)
		return nil
	}
	if env.DocID == "" {
		log.Printf("orchestrator: ingest message missing doc_id, dropping")
		return nil
	}

	if env.IdempotencyKey != "" && dedupe != nil {
		prev, err := dedupe.Get(ctx, env.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("orchestrator: dedupe get: %w", err)
		}
		if prev != "" {
			log.Printf("orchestrator: dedupe hit for %s, skipping", env.IdempotencyKey)
			return nil
		}
	}

	if err := pipeline.ProcessDocument(ctx, env.DocID); err != nil {
		return err
	}

	if env.IdempotencyKey != "" && dedupe != nil {
		if err := dedupe.Set(ctx, env.IdempotencyKey, env.DocID, dedupeTTL); err != nil {
			return fmt.Errorf("orchestrator: dedupe set: %w", err)
		}
	}
	return nil
}
