package knowledgebase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docbuddy/src/infrastructure/log"
)

type searchService struct {
	stores       StoreProvider
	storeTimeout time.Duration
}

// NewSearchService returns a SearchService reading from stores.
// A zero storeTimeout leaves the caller's deadline untouched.
func NewSearchService(stores StoreProvider, storeTimeout time.Duration) SearchService {
	return &searchService{
		stores:       stores,
		storeTimeout: storeTimeout,
	}
}

func (s *searchService) Search(ctx context.Context, storePath, query string, k int) ([]ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	store, err := s.stores.Collection(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %q: %w", storePath, err)
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	results, err := store.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, classify("similarity search", err)
	}

	log.Debug("Similarity search done", "store", storePath, "k", k, "hits", len(results))
	return results, nil
}

type collectionService struct {
	stores       StoreProvider
	storeTimeout time.Duration
}

func NewCollectionService(stores StoreProvider, storeTimeout time.Duration) CollectionService {
	return &collectionService{
		stores:       stores,
		storeTimeout: storeTimeout,
	}
}

func (s *collectionService) Count(ctx context.Context, storePath string) (int, error) {
	store, err := s.stores.Collection(storePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open store %q: %w", storePath, err)
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	n, err := store.Count(ctx)
	if err != nil {
		return 0, classify("count documents", err)
	}
	return n, nil
}

func (s *collectionService) Delete(ctx context.Context, storePath string) (bool, error) {
	store, err := s.stores.Collection(storePath)
	if err != nil {
		return false, fmt.Errorf("failed to open store %q: %w", storePath, err)
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	removed, err := store.DeleteCollection(ctx)
	if err != nil {
		return false, classify("delete collection", err)
	}
	return removed, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
