package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// StartKafkaConsumer reads IngestEnvelope messages from the job topic and
// drives each referenced document through the pipeline using a worker pool.
// It is the push-based alternative to Pool's docstore poll: deployments that
// already route ingest notifications through Kafka point readers at the job
// topic and run this consumer instead of (or alongside) the poller.
//
// A message is committed after handling succeeds or, once retries on
// errors are exhausted, after an attempt to republish it to the DLQ topic
// (<topic>.dlq). A message not yet handled when the orchestrator stops is
// left uncommitted and re-fetched on restart. When no DLQ producer is
// configured or the republish fails, the failure is logged and the message
// is still committed.
func StartKafkaConsumer(
	ctx context.Context,
	brokers []string,
	groupID string,
	jobTopic string,
	producer *kafka.Writer,
	pipeline *Pipeline,
	dedupe DedupeStore,
	workerCount int,
	dedupeTTL time.Duration,
) error {
	if workerCount <= 0 {
		workerCount = 4
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    jobTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("orchestrator: error closing kafka reader: %v", err)
		}
	}()

	jobs := make(chan kafka.Message, workerCount*4)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				const maxAttempts = 3
				attempt := 0
				var lastErr error
				for {
					attempt++
					if err := HandleIngestMessage(ctx, pipeline, dedupe, dedupeTTL, msg.Value); err != nil {
						lastErr = err
						if attempt < maxAttempts && ctx.Err() == nil {
							backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
							log.Printf("orchestrator: worker=%d transient error, will retry (attempt=%d/%d, sleep=%s): %v",
								workerID, attempt, maxAttempts, backoff, err)
							sleepCtx, cancel := context.WithTimeout(ctx, backoff)
							<-sleepCtx.Done()
							cancel()
							continue
						}
						publishJobDLQ(ctx, producer, jobTopic, msg, attempt, lastErr)
					}
					break
				}

				// Commit regardless of outcome: success or DLQ after retries.
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Printf("orchestrator: commit failed (topic=%s partition=%d offset=%d): %v",
						msg.Topic, msg.Partition, msg.Offset, err)
				}
			}
		}(i)
	}

	// Reader loop: fetch messages and enqueue into the jobs channel.
	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Printf("orchestrator: kafka fetch error: %v", err)
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					if !t.Stop() {
						<-t.C
					}
					return
				}
				continue
			}

			select {
			case jobs <- m:
			case <-ctx.Done():
				// Not committed yet; the message is re-fetched on restart.
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

// publishJobDLQ republishes an undeliverable job to <topic>.dlq so operators
// can inspect and replay it. The original bytes are preserved verbatim; the
// failure detail travels in headers rather than mutating the payload.
func publishJobDLQ(ctx context.Context, producer *kafka.Writer, jobTopic string, msg kafka.Message, attempts int, lastErr error) {
	if producer == nil {
		log.Printf("orchestrator: no DLQ producer configured, dropping job after %d attempts: %v", attempts, lastErr)
		return
	}
	out := kafka.Message{
		Topic: jobTopic + ".dlq",
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(lastErr.Error())},
			{Key: "attempts", Value: []byte{byte('0' + attempts)}},
		},
	}
	if err := producer.WriteMessages(ctx, out); err != nil {
		log.Printf("orchestrator: failed to publish job DLQ (key=%s): %v", string(msg.Key), err)
	}
}
