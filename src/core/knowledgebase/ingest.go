package knowledgebase

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"docbuddy/src/infrastructure/log"
)

const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 300
)

type ingestionService struct {
	splitter     Splitter
	stores       StoreProvider
	storeTimeout time.Duration
}

func NewIngestionService(splitter Splitter, stores StoreProvider, storeTimeout time.Duration) IngestionService {
	return &ingestionService{
		splitter:     splitter,
		stores:       stores,
		storeTimeout: storeTimeout,
	}
}

// Ingest splits the document and adds every chunk to the store at
// req.StorePath. A failed Add is not rolled back.
func (s *ingestionService) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	if !utf8.Valid(req.Content) {
		return 0, fmt.Errorf("%w: document is not valid UTF-8 text", ErrInvalidInput)
	}
	// Both unset means the service defaults.
	if req.ChunkSize == 0 && req.ChunkOverlap == 0 {
		req.ChunkSize = DefaultChunkSize
		req.ChunkOverlap = DefaultChunkOverlap
	}

	chunks, err := s.splitter.Split(string(req.Content), req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("failed to split document: %w", err)
	}
	if len(chunks) == 0 {
		log.Info("Document produced no chunks", "source", req.Source, "store", req.StorePath)
		return 0, nil
	}

	if req.Source != "" {
		for i := range chunks {
			if chunks[i].Metadata == nil {
				chunks[i].Metadata = make(map[string]string, 1)
			}
			chunks[i].Metadata[MetadataSource] = req.Source
		}
	}

	store, err := s.stores.Collection(req.StorePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open store %q: %w", req.StorePath, err)
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	if err := store.Add(ctx, chunks); err != nil {
		return 0, classify("failed to add chunks", err)
	}

	log.Info("Document ingested",
		"source", req.Source,
		"store", req.StorePath,
		"chunks", len(chunks),
		"elapsed", time.Since(start),
	)
	return len(chunks), nil
}
