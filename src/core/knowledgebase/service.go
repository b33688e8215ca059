package knowledgebase

import (
	"context"
)

// IngestionService turns a document into stored chunks
type IngestionService interface {
	Ingest(ctx context.Context, req IngestRequest) (int, error)
}

// CollectionService exposes collection level operations on vector stores
type CollectionService interface {
	Count(ctx context.Context, storePath string) (int, error)
	Delete(ctx context.Context, storePath string) (bool, error)
}

// SearchService defines the interface for search operations
type SearchService interface {
	Search(ctx context.Context, storePath, query string, k int) ([]ScoredChunk, error)
}

// ChatService defines the interface for chat operations
type ChatService interface {
	Answer(ctx context.Context, req QueryRequest) (*Answer, error)
	GetHistory(ctx context.Context, sessionID string) ([]Turn, error)
	DeleteHistory(ctx context.Context, sessionID string) error
}

// SystemService defines the interface for system operations
type SystemService interface {
	CheckHealth(ctx context.Context) (*HealthStatus, error)
}
