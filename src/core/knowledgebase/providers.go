package knowledgebase

import (
	"context"
)

// LLMProvider generates a completion for a fully rendered prompt
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorStore is one durable collection of embedded chunks.
type VectorStore interface {
	// Add embeds chunks lacking a vector and persists all of them.
	// The collection is created on first write.
	Add(ctx context.Context, chunks []Chunk) error
	// Count returns ErrNotFound when the collection does not exist.
	Count(ctx context.Context) (int, error)
	// SimilaritySearch returns at most k chunks ordered by descending score.
	// Equal scores keep insertion order where the backend records it; the
	// Weaviate backend orders them by chunk start offset instead.
	SimilaritySearch(ctx context.Context, query string, k int) ([]ScoredChunk, error)
	// DeleteCollection reports whether anything was removed.
	DeleteCollection(ctx context.Context) (bool, error)
}

// StoreProvider resolves a store path to its collection without creating it.
type StoreProvider interface {
	Collection(path string) (VectorStore, error)
}

// SessionMemory keeps per session transcripts.
type SessionMemory interface {
	AppendTurn(ctx context.Context, sessionID string, role Role, content string) error
	GetHistory(ctx context.Context, sessionID string) ([]Turn, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Splitter cuts a document into ordered, possibly overlapping chunks
type Splitter interface {
	Split(content string, chunkSize, chunkOverlap int) ([]Chunk, error)
}

// Pinger is implemented by components that can report their reachability
type Pinger interface {
	Ping(ctx context.Context) error
}
