// Package docstore is the relational system of record for document
// lifecycle: the documents, chunks, extraction_windows, extraction_events,
// and ingestion_jobs tables referenced in the persisted-state layout. It
// never stores graph or vector payloads — those live in internal/graphstore
// and internal/vectorstore — only the bookkeeping needed to drive the
// pending -> tier_a_done -> tier_b_done -> tier_c_done -> completed state
// machine and to answer `extract status`/`list documents` without a graph
// round trip.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docgraph/internal/model"
)

// Store is the Postgres-backed document/chunk/job bookkeeping layer.
type Store struct {
	pool *pgxpool.Pool
}

// NewPostgresStore bootstraps the document lifecycle tables (best-effort
// CREATE IF NOT EXISTS; production deployments manage migrations
// externally) and returns a Store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
		  doc_id       TEXT PRIMARY KEY,
		  source_type  TEXT NOT NULL,
		  source_url   TEXT NOT NULL DEFAULT '',
		  content_hash TEXT NOT NULL DEFAULT '',
		  text         TEXT NOT NULL,
		  ingested_at  TIMESTAMPTZ NOT NULL,
		  state        TEXT NOT NULL DEFAULT 'pending',
		  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_state ON documents(state)`,
		`CREATE INDEX IF NOT EXISTS documents_ingested_at ON documents(ingested_at)`,
		`CREATE TABLE IF NOT EXISTS chunks (
		  chunk_id    TEXT PRIMARY KEY,
		  doc_id      TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		  ordinal     INT NOT NULL,
		  text        TEXT NOT NULL,
		  token_count INT NOT NULL,
		  vector_id   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_doc_id ON chunks(doc_id, ordinal)`,
		`CREATE TABLE IF NOT EXISTS extraction_windows (
		  window_id  TEXT PRIMARY KEY,
		  doc_id     TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		  ordinal    INT NOT NULL,
		  text       TEXT NOT NULL,
		  score      DOUBLE PRECISION NOT NULL,
		  span_start INT NOT NULL,
		  span_end   INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS extraction_windows_doc_id ON extraction_windows(doc_id, ordinal)`,
		`CREATE TABLE IF NOT EXISTS extraction_events (
		  event_id  TEXT PRIMARY KEY,
		  doc_id    TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		  state     TEXT NOT NULL,
		  detail    TEXT NOT NULL DEFAULT '',
		  occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS extraction_events_doc_id ON extraction_events(doc_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS ingestion_jobs (
		  job_id      TEXT PRIMARY KEY,
		  doc_id      TEXT NOT NULL,
		  source_type TEXT NOT NULL,
		  source_url  TEXT NOT NULL DEFAULT '',
		  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("docstore: bootstrap: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

// UpsertDocument writes (or re-writes) a document row. Re-submitting the
// same content_hash under the same doc_id is a no-op; a new content_hash
// overwrites the row and resets its state to pending so the changed content
// is extracted again.
func (s *Store) UpsertDocument(ctx context.Context, doc model.NormalizedDocument) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents(doc_id, source_type, source_url, content_hash, text, ingested_at, state)
VALUES ($1,$2,$3,$4,$5,$6,'pending')
ON CONFLICT (doc_id) DO UPDATE SET
  source_type=EXCLUDED.source_type,
  source_url=EXCLUDED.source_url,
  content_hash=EXCLUDED.content_hash,
  text=EXCLUDED.text,
  ingested_at=EXCLUDED.ingested_at,
  state='pending',
  updated_at=now()
WHERE documents.content_hash IS DISTINCT FROM EXCLUDED.content_hash
`, doc.DocID, string(doc.SourceType), doc.SourceURL, doc.ContentHash, doc.Text, doc.IngestedAt)
	return err
}

// RecordIngestionJob logs one ingestion attempt for audit/idempotency
// checks upstream of extraction.
func (s *Store) RecordIngestionJob(ctx context.Context, docID string, sourceType model.SourceType, sourceURL string) (string, error) {
	jobID := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
INSERT INTO ingestion_jobs(job_id, doc_id, source_type, source_url) VALUES ($1,$2,$3,$4)
`, jobID, docID, string(sourceType), sourceURL)
	return jobID, err
}

// GetDocument fetches a document and its current lifecycle state.
func (s *Store) GetDocument(ctx context.Context, docID string) (model.NormalizedDocument, model.ExtractionState, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT doc_id, source_type, source_url, content_hash, text, ingested_at, state
FROM documents WHERE doc_id=$1
`, docID)
	var doc model.NormalizedDocument
	var sourceType, state string
	if err := row.Scan(&doc.DocID, &sourceType, &doc.SourceURL, &doc.ContentHash, &doc.Text, &doc.IngestedAt, &state); err != nil {
		if err == pgx.ErrNoRows {
			return model.NormalizedDocument{}, "", false, nil
		}
		return model.NormalizedDocument{}, "", false, err
	}
	doc.SourceType = model.SourceType(sourceType)
	return doc, model.ExtractionState(state), true, nil
}

// SetState transitions a document to state and appends an extraction_events
// row recording the transition.
func (s *Store) SetState(ctx context.Context, docID string, state model.ExtractionState, detail string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	if err := tx.QueryRow(ctx, `SELECT state FROM documents WHERE doc_id=$1 FOR UPDATE`, docID).Scan(&current); err != nil {
		return err
	}
	if !model.ValidTransition(model.ExtractionState(current), state) {
		return fmt.Errorf("docstore: illegal transition %s -> %s for %q", current, state, docID)
	}
	if _, err := tx.Exec(ctx, `UPDATE documents SET state=$1, updated_at=now() WHERE doc_id=$2`, string(state), docID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO extraction_events(event_id, doc_id, state, detail) VALUES ($1,$2,$3,$4)
`, uuid.NewString(), docID, string(state), detail); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListByState returns up to limit doc_ids currently in state, oldest
// ingested first — the feed for `extract pending` and worker claims.
func (s *Store) ListByState(ctx context.Context, state model.ExtractionState, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT doc_id FROM documents WHERE state=$1 ORDER BY ingested_at ASC LIMIT $2
`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReprocessSince resets every document ingested within the last window to
// pending, without touching its chunks, windows, or prior graph
// contributions — re-extraction upserts by the same idempotent keys rather
// than duplicating history.
func (s *Store) ReprocessSince(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)
	tag, err := s.pool.Exec(ctx, `
UPDATE documents SET state='pending', updated_at=now() WHERE ingested_at >= $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ReprocessDocument is the explicit single-document reset: it returns the
// document to pending regardless of current state, the one path allowed to
// move backward. The transition is still recorded in extraction_events so
// provenance history survives the reset.
func (s *Store) ReprocessDocument(ctx context.Context, docID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE documents SET state='pending', updated_at=now() WHERE doc_id=$1`, docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("docstore: unknown doc_id %q", docID)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO extraction_events(event_id, doc_id, state, detail) VALUES ($1,$2,'pending','reprocess')
`, uuid.NewString(), docID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertChunks stores chunker output for a document, replacing any prior
// chunk rows (re-chunking a re-ingested document is idempotent per chunk
// ordinal, not additive).
func (s *Store) InsertChunks(ctx context.Context, docID string, chunks []model.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id=$1`, docID); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
INSERT INTO chunks(chunk_id, doc_id, ordinal, text, token_count, vector_id) VALUES ($1,$2,$3,$4,$5,$6)
`, c.ChunkID, docID, c.Ordinal, c.Text, c.TokenCount, c.EmbeddingVectorID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListChunks returns a document's chunks in ordinal order.
func (s *Store) ListChunks(ctx context.Context, docID string) ([]model.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
SELECT chunk_id, doc_id, ordinal, text, token_count, vector_id
FROM chunks WHERE doc_id=$1 ORDER BY ordinal ASC
`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Ordinal, &c.Text, &c.TokenCount, &c.EmbeddingVectorID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveWindows persists Tier B's candidate windows for a document, for
// Tier C to re-read across process restarts and for `extract status` to
// report how many windows are still awaiting an LLM pass.
func (s *Store) SaveWindows(ctx context.Context, windows []model.Window) error {
	for _, w := range windows {
		id := fmt.Sprintf("%s:%d", w.DocID, w.Ordinal)
		if _, err := s.pool.Exec(ctx, `
INSERT INTO extraction_windows(window_id, doc_id, ordinal, text, score, span_start, span_end)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (window_id) DO UPDATE SET text=EXCLUDED.text, score=EXCLUDED.score,
  span_start=EXCLUDED.span_start, span_end=EXCLUDED.span_end
`, id, w.DocID, w.Ordinal, w.Text, w.Score, w.TokenSpan[0], w.TokenSpan[1]); err != nil {
			return err
		}
	}
	return nil
}

// ListWindows returns a document's saved Tier B windows in ordinal order.
func (s *Store) ListWindows(ctx context.Context, docID string) ([]model.Window, error) {
	rows, err := s.pool.Query(ctx, `
SELECT doc_id, ordinal, text, score, span_start, span_end
FROM extraction_windows WHERE doc_id=$1 ORDER BY ordinal ASC
`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Window
	for rows.Next() {
		var w model.Window
		if err := rows.Scan(&w.DocID, &w.Ordinal, &w.Text, &w.Score, &w.TokenSpan[0], &w.TokenSpan[1]); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Event is one extraction_events row, for `extract status` reporting.
type Event struct {
	DocID      string
	State      model.ExtractionState
	Detail     string
	OccurredAt time.Time
}

// ListEvents returns a document's lifecycle transition history, oldest first.
func (s *Store) ListEvents(ctx context.Context, docID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
SELECT doc_id, state, detail, occurred_at FROM extraction_events
WHERE doc_id=$1 ORDER BY occurred_at ASC
`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var state string
		if err := rows.Scan(&e.DocID, &state, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.State = model.ExtractionState(state)
		out = append(out, e)
	}
	return out, rows.Err()
}

// StateCounts reports how many documents are currently in each lifecycle
// state, for `extract status`/`status` summary tables.
func (s *Store) StateCounts(ctx context.Context) (map[model.ExtractionState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM documents GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.ExtractionState]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[model.ExtractionState(state)] = n
	}
	return out, rows.Err()
}

// DocFilter narrows a ListDocuments call. Zero-valued fields match
// everything; Limit defaults to 50.
type DocFilter struct {
	SourceType model.SourceType
	State      model.ExtractionState
	Limit      int
	Offset     int
}

// DocumentInfo is one row of `list documents` output.
type DocumentInfo struct {
	DocID      string
	SourceType model.SourceType
	SourceURL  string
	State      model.ExtractionState
	IngestedAt time.Time
}

// ListDocuments returns a paginated document listing, oldest ingested
// first with doc_id as the tie-break so pages are stable across calls.
func (s *Store) ListDocuments(ctx context.Context, filter DocFilter) ([]DocumentInfo, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT doc_id, source_type, source_url, state, ingested_at FROM documents
WHERE ($1 = '' OR source_type = $1)
  AND ($2 = '' OR state = $2)
ORDER BY ingested_at ASC, doc_id ASC
LIMIT $3 OFFSET $4
`, string(filter.SourceType), string(filter.State), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var sourceType, state string
		if err := rows.Scan(&d.DocID, &sourceType, &d.SourceURL, &state, &d.IngestedAt); err != nil {
			return nil, err
		}
		d.SourceType = model.SourceType(sourceType)
		d.State = model.ExtractionState(state)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PurgeDocument removes a document and its chunk/window/event rows (ON
// DELETE CASCADE handles the child tables). It does not touch the graph or
// vector stores; internal/graphstore.Purge and the caller's vector-store
// delete handle those.
func (s *Store) PurgeDocument(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE doc_id=$1`, docID)
	return err
}

// Ping verifies connectivity, for the health surface.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
