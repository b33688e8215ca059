package local

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	"go.etcd.io/bbolt"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/infrastructure/log"
)

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")
	keyDimension = []byte("dimension")
)

type record struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"vector"`
	Start    int               `json:"start"`
	End      int               `json:"end"`
}

// Collection is the vector store living in one directory.
type Collection struct {
	reg  *Registry
	dir  string
	name string
}

func (c *Collection) Add(ctx context.Context, chunks []knowledgebase.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := c.embedMissing(ctx, chunks); err != nil {
		return err
	}
	dim := len(chunks[0].Embedding)
	for i, ch := range chunks {
		if len(ch.Embedding) == 0 || len(ch.Embedding) != dim {
			return fmt.Errorf("%w: chunk %d has dimension %d, expected %d",
				knowledgebase.ErrInvalidInput, i, len(ch.Embedding), dim)
		}
	}

	c.reg.gate.RLock()
	defer c.reg.gate.RUnlock()

	db, err := c.reg.open(c.dir, true)
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if raw := meta.Get(keyDimension); raw != nil {
			if stored, _ := strconv.Atoi(string(raw)); stored != dim {
				return fmt.Errorf("%w: store holds %d dimensional vectors, got %d",
					knowledgebase.ErrInvalidInput, stored, dim)
			}
		} else if err := meta.Put(keyDimension, []byte(strconv.Itoa(dim))); err != nil {
			return err
		}

		b, err := tx.CreateBucketIfNotExists(bucketChunks)
		if err != nil {
			return err
		}
		for _, ch := range chunks {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			id := ch.ID
			if id == "" {
				id = c.reg.node.Generate().String()
			}
			data, err := json.Marshal(record{
				ID:       id,
				Text:     ch.Text,
				Metadata: ch.Metadata,
				Vector:   ch.Embedding,
				Start:    ch.Start,
				End:      ch.End,
			})
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add chunks to %s: %w", c.name, err)
	}

	log.Debug("Chunks stored", "store", c.name, "count", len(chunks))
	return nil
}

func (c *Collection) embedMissing(ctx context.Context, chunks []knowledgebase.Chunk) error {
	var idx []int
	var texts []string
	for i, ch := range chunks {
		if len(ch.Embedding) == 0 {
			idx = append(idx, i)
			texts = append(texts, ch.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := c.reg.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed documents: %w", knowledgebase.ErrUpstream, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d texts",
			knowledgebase.ErrUpstream, len(vectors), len(texts))
	}
	for j, i := range idx {
		chunks[i].Embedding = vectors[j]
	}
	return nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.reg.gate.RLock()
	defer c.reg.gate.RUnlock()

	db, err := c.reg.open(c.dir, false)
	if err != nil {
		return 0, err
	}

	var n int
	err = db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketChunks); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// SimilaritySearch scores every stored chunk against the query. A store
// that was never written returns no results.
func (c *Collection) SimilaritySearch(ctx context.Context, query string, k int) ([]knowledgebase.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", knowledgebase.ErrInvalidInput, k)
	}

	exists, err := c.reg.fs.Exists(filepath.Join(c.dir, dbFileName))
	if err != nil {
		return nil, err
	}
	if !exists {
		return []knowledgebase.ScoredChunk{}, nil
	}

	q, err := c.reg.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", knowledgebase.ErrUpstream, err)
	}

	c.reg.gate.RLock()
	defer c.reg.gate.RUnlock()

	db, err := c.reg.open(c.dir, false)
	if err != nil {
		if errors.Is(err, knowledgebase.ErrNotFound) {
			return []knowledgebase.ScoredChunk{}, nil
		}
		return nil, err
	}

	var hits []knowledgebase.ScoredChunk
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if len(rec.Vector) != len(q) {
				return fmt.Errorf("%w: query has dimension %d, store holds %d",
					knowledgebase.ErrInvalidInput, len(q), len(rec.Vector))
			}
			hits = append(hits, knowledgebase.ScoredChunk{
				Chunk: knowledgebase.Chunk{
					ID:       rec.ID,
					Text:     rec.Text,
					Metadata: rec.Metadata,
					Start:    rec.Start,
					End:      rec.End,
				},
				Score: Relevance(q, rec.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", c.name, err)
	}

	// hits are in insertion order, a stable sort keeps it for equal scores
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	if hits == nil {
		hits = []knowledgebase.ScoredChunk{}
	}
	return hits, nil
}

// DeleteCollection removes the store database, and the directory when
// nothing else is left in it. It reports false when no store lives there.
func (c *Collection) DeleteCollection(ctx context.Context) (bool, error) {
	c.reg.gate.Lock()
	defer c.reg.gate.Unlock()

	if err := c.reg.close(c.dir); err != nil {
		return false, fmt.Errorf("failed to close store: %w", err)
	}

	exists, err := c.reg.fs.Exists(filepath.Join(c.dir, dbFileName))
	if err != nil {
		return false, err
	}
	if !exists {
		log.Info("No store found to delete", "store", c.name)
		return false, nil
	}

	if err := c.reg.fs.Remove(filepath.Join(c.dir, dbFileName)); err != nil {
		return false, fmt.Errorf("failed to remove store: %w", err)
	}
	// nested stores and foreign files keep the directory alive
	if err := c.reg.fs.Remove(c.dir); err != nil {
		log.Debug("Keeping non-empty store directory", "store", c.name, "error", err.Error())
	}
	log.Info("Store deleted", "store", c.name)
	return true, nil
}

// Relevance maps the cosine similarity of a and b from [-1, 1] onto [0, 1].
// Zero vectors score 0.5.
func Relevance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0.5
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (1 + math.Max(-1, math.Min(1, cos))) / 2
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
