package docstore

import (
	"context"
	"time"

	"docgraph/internal/model"
)

// Interface is the narrow contract the orchestrator and CLI depend on, so
// tests can substitute MemoryStore for a real Postgres-backed Store without
// a database.
type Interface interface {
	UpsertDocument(ctx context.Context, doc model.NormalizedDocument) error
	RecordIngestionJob(ctx context.Context, docID string, sourceType model.SourceType, sourceURL string) (string, error)
	GetDocument(ctx context.Context, docID string) (model.NormalizedDocument, model.ExtractionState, bool, error)
	SetState(ctx context.Context, docID string, state model.ExtractionState, detail string) error
	ListByState(ctx context.Context, state model.ExtractionState, limit int) ([]string, error)
	ReprocessSince(ctx context.Context, window time.Duration) (int, error)
	ReprocessDocument(ctx context.Context, docID string) error
	InsertChunks(ctx context.Context, docID string, chunks []model.Chunk) error
	ListChunks(ctx context.Context, docID string) ([]model.Chunk, error)
	SaveWindows(ctx context.Context, windows []model.Window) error
	ListWindows(ctx context.Context, docID string) ([]model.Window, error)
	ListEvents(ctx context.Context, docID string) ([]Event, error)
	ListDocuments(ctx context.Context, filter DocFilter) ([]DocumentInfo, error)
	StateCounts(ctx context.Context) (map[model.ExtractionState]int, error)
	PurgeDocument(ctx context.Context, docID string) error
	Ping(ctx context.Context) error
}

var (
	_ Interface = (*Store)(nil)
	_ Interface = (*MemoryStore)(nil)
)
