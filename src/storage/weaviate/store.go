package weaviate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/weaviate/weaviate/entities/models"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/infrastructure/log"
)

const (
	propText     = "text"
	propSource   = "source"
	propMetadata = "metadata"
	propStart    = "spanStart"
	propEnd      = "spanEnd"
)

var chunkProperties = []*models.Property{
	{Name: propText, DataType: []string{"text"}},
	{Name: propSource, DataType: []string{"text"}},
	{Name: propMetadata, DataType: []string{"text"}},
	{Name: propStart, DataType: []string{"int"}},
	{Name: propEnd, DataType: []string{"int"}},
}

// Store maps store paths onto Weaviate classes. Vectors are computed
// locally and stored with vectorizer "none".
type Store struct {
	sdk      *SDK
	embedder embeddings.Embedder

	schemaMu sync.Mutex
}

func NewStore(sdk *SDK, embedder embeddings.Embedder) *Store {
	return &Store{sdk: sdk, embedder: embedder}
}

func (s *Store) Collection(path string) (knowledgebase.VectorStore, error) {
	class, err := ClassName(path)
	if err != nil {
		return nil, err
	}
	return &Collection{store: s, class: class, path: path}, nil
}

// Ping checks that Weaviate is ready
func (s *Store) Ping(ctx context.Context) error {
	return s.sdk.Ready(ctx)
}

// maxReadableClassPart caps the sanitized path kept in a class name.
const maxReadableClassPart = 64

// ClassName derives a valid class name from a store path, e.g. "crust_v5"
// becomes "Docs_crust_v5_aaed14f219301e22". The readable part replaces
// characters Weaviate does not allow with '_'; the suffix is a hash of the
// path, so distinct paths never share a class.
func ClassName(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("%w: store path must not be empty", knowledgebase.ErrInvalidInput)
	}

	var sb strings.Builder
	sb.WriteString("Docs_")
	n := 0
	for _, r := range trimmed {
		if n == maxReadableClassPart {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
		n++
	}
	sum := sha256.Sum256([]byte(trimmed))
	sb.WriteByte('_')
	sb.WriteString(hex.EncodeToString(sum[:8]))
	return sb.String(), nil
}

// Collection is a single Weaviate class.
type Collection struct {
	store *Store
	class string
	path  string
}

func (c *Collection) ensureClass(ctx context.Context) error {
	c.store.schemaMu.Lock()
	defer c.store.schemaMu.Unlock()

	exists, err := c.store.sdk.ClassExists(ctx, c.class)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	log.Info("Creating Weaviate class", "class", c.class, "store", c.path)
	return c.store.sdk.CreateSchema(ctx, c.class, chunkProperties, "none")
}

func (c *Collection) Add(ctx context.Context, chunks []knowledgebase.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var missing []string
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			missing = append(missing, ch.Text)
		}
	}
	var vectors [][]float32
	if len(missing) > 0 {
		var err error
		vectors, err = c.store.embedder.EmbedDocuments(ctx, missing)
		if err != nil {
			return fmt.Errorf("%w: embed documents: %w", knowledgebase.ErrUpstream, err)
		}
		if len(vectors) != len(missing) {
			return fmt.Errorf("%w: embedder returned %d vectors for %d texts",
				knowledgebase.ErrUpstream, len(vectors), len(missing))
		}
	}

	if err := c.ensureClass(ctx); err != nil {
		return fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}

	objects := make([]VectorObject, len(chunks))
	next := 0
	for i, ch := range chunks {
		vec := ch.Embedding
		if len(vec) == 0 {
			vec = vectors[next]
			next++
		}
		props, err := toProperties(ch)
		if err != nil {
			return err
		}
		objects[i] = VectorObject{Vector: vec, Properties: props}
	}

	if err := c.store.sdk.BatchAddVectors(ctx, c.class, objects); err != nil {
		return fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}
	return nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	exists, err := c.store.sdk.ClassExists(ctx, c.class)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}
	if !exists {
		return 0, fmt.Errorf("no class %s: %w", c.class, knowledgebase.ErrNotFound)
	}

	n, err := c.store.sdk.CountObjects(ctx, c.class)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}
	return n, nil
}

// SimilaritySearch scores hits by Weaviate certainty, which for cosine
// distance d is 1 - d/2 and lies in [0, 1].
func (c *Collection) SimilaritySearch(ctx context.Context, query string, k int) ([]knowledgebase.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", knowledgebase.ErrInvalidInput, k)
	}

	exists, err := c.store.sdk.ClassExists(ctx, c.class)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}
	if !exists {
		return []knowledgebase.ScoredChunk{}, nil
	}

	q, err := c.store.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", knowledgebase.ErrUpstream, err)
	}

	results, err := c.store.sdk.QueryVectors(ctx, c.class, q, QueryConfig{
		Fields: []string{propText, propSource, propMetadata, propStart, propEnd},
		Limit:  k,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}

	hits := make([]knowledgebase.ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, knowledgebase.ScoredChunk{
			Chunk: fromProperties(r.ID, r.Properties),
			Score: r.Certainty,
		})
	}
	// Weaviate keeps no insertion order; equal scores fall back to span order
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Start < hits[j].Start
	})
	return hits, nil
}

func (c *Collection) DeleteCollection(ctx context.Context) (bool, error) {
	exists, err := c.store.sdk.ClassExists(ctx, c.class)
	if err != nil {
		return false, fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}
	if !exists {
		log.Info("No store found to delete", "store", c.path, "class", c.class)
		return false, nil
	}

	if err := c.store.sdk.DeleteSchema(ctx, c.class); err != nil {
		return false, fmt.Errorf("%w: %w", knowledgebase.ErrUpstream, err)
	}
	log.Info("Store deleted", "store", c.path, "class", c.class)
	return true, nil
}

func toProperties(ch knowledgebase.Chunk) (map[string]interface{}, error) {
	props := map[string]interface{}{
		propText:   ch.Text,
		propSource: ch.Source(),
		propStart:  ch.Start,
		propEnd:    ch.End,
	}
	if len(ch.Metadata) > 0 {
		raw, err := json.Marshal(ch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		props[propMetadata] = string(raw)
	}
	return props, nil
}

func fromProperties(id string, props map[string]interface{}) knowledgebase.Chunk {
	ch := knowledgebase.Chunk{ID: id}
	ch.Text, _ = props[propText].(string)

	if raw, ok := props[propMetadata].(string); ok && raw != "" {
		var md map[string]string
		if err := json.Unmarshal([]byte(raw), &md); err == nil {
			ch.Metadata = md
		}
	}
	if src, ok := props[propSource].(string); ok && src != "" {
		if ch.Metadata == nil {
			ch.Metadata = make(map[string]string, 1)
		}
		ch.Metadata[knowledgebase.MetadataSource] = src
	}
	if v, ok := props[propStart].(float64); ok {
		ch.Start = int(v)
	}
	if v, ok := props[propEnd].(float64); ok {
		ch.End = int(v)
	}
	return ch
}
