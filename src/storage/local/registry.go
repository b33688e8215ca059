// Package local implements a file backed vector store on bbolt. Every store
// path is a directory holding one bbolt database; similarity search is an
// exact scan over the stored vectors. Store directories may nest, a store
// owns only its own database file.
package local

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tmc/langchaingo/embeddings"
	"go.etcd.io/bbolt"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/fsutil"
)

const (
	dbFileName         = "vectors.db"
	defaultOpenTimeout = 5 * time.Second
)

// Registry hands out collections and owns the open database handles.
type Registry struct {
	root     string
	embedder embeddings.Embedder
	fs       fsutil.FileStore
	node     *snowflake.Node

	// gate is held shared by collection operations and exclusively while a
	// collection is deleted, so no handle is closed under a running transaction.
	gate sync.RWMutex

	mu  sync.Mutex
	dbs map[string]*bbolt.DB

	OpenTimeout time.Duration
}

// NewRegistry creates a registry resolving store paths against root. With a
// root, absolute paths and paths leaving it are rejected. An empty root
// resolves paths against the working directory.
func NewRegistry(root string, embedder embeddings.Embedder, fs fsutil.FileStore) (*Registry, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &Registry{
		root:        root,
		embedder:    embedder,
		fs:          fs,
		node:        node,
		dbs:         make(map[string]*bbolt.DB),
		OpenTimeout: defaultOpenTimeout,
	}, nil
}

// Collection returns the collection stored at path. Nothing is created
// until the first Add.
func (r *Registry) Collection(path string) (knowledgebase.VectorStore, error) {
	dir, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	return &Collection{reg: r, dir: dir, name: path}, nil
}

func (r *Registry) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: store path must not be empty", knowledgebase.ErrInvalidInput)
	}
	clean := filepath.Clean(path)
	if clean == "." {
		return "", fmt.Errorf("%w: store path %q names the data root", knowledgebase.ErrInvalidInput, path)
	}
	if r.root == "" {
		return clean, nil
	}
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: store path %q escapes the data root", knowledgebase.ErrInvalidInput, path)
	}
	return filepath.Join(r.root, clean), nil
}

// open returns the database for dir. Without create a missing database
// yields ErrNotFound.
func (r *Registry) open(dir string, create bool) (*bbolt.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[dir]; ok {
		return db, nil
	}

	file := filepath.Join(dir, dbFileName)
	if create {
		if err := r.fs.MakeDirectory(dir); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	} else {
		exists, err := r.fs.Exists(file)
		if err != nil {
			return nil, fmt.Errorf("failed to stat store: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("no store at %s: %w", dir, knowledgebase.ErrNotFound)
		}
	}

	db, err := bbolt.Open(file, 0600, &bbolt.Options{Timeout: r.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	r.dbs[dir] = db
	return db, nil
}

func (r *Registry) close(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, ok := r.dbs[dir]
	if !ok {
		return nil
	}
	delete(r.dbs, dir)
	return db.Close()
}

// Close releases every open database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for dir, db := range r.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.dbs, dir)
	}
	return firstErr
}

// Ping checks that the data root is usable.
func (r *Registry) Ping(ctx context.Context) error {
	if r.root == "" {
		return nil
	}
	return r.fs.MakeDirectory(r.root)
}
