package knowledgebase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbuddy/src/core/knowledgebase"
)

func TestIngestDefaults(t *testing.T) {
	f := newFixture(t)
	doc := strings.Repeat("Call GET /enrich with a company domain. ", 120)

	n := f.ingestText(t, "defaults", doc, 0, 0)
	assert.Equal(t, 3, n, "a 4800 rune document splits into three chunks of at most 2000 runes")

	count, err := f.coll.Count(context.Background(), "defaults")
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestIngestEmptyDocument(t *testing.T) {
	f := newFixture(t)

	n := f.ingestText(t, "empty", "", 10, 0)
	assert.Zero(t, n)

	_, err := f.coll.Count(context.Background(), "empty")
	assert.ErrorIs(t, err, knowledgebase.ErrNotFound, "no store is created for an empty document")
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  knowledgebase.IngestRequest
	}{
		{
			name: "binary content",
			req:  knowledgebase.IngestRequest{Content: []byte{0xff, 0xfe, 0x00}, StorePath: "s", ChunkSize: 10},
		},
		{
			name: "overlap not below size",
			req:  knowledgebase.IngestRequest{Content: []byte("text"), StorePath: "s", ChunkSize: 10, ChunkOverlap: 10},
		},
		{
			name: "negative size",
			req:  knowledgebase.IngestRequest{Content: []byte("text"), StorePath: "s", ChunkSize: -1},
		},
		{
			name: "escaping store path",
			req:  knowledgebase.IngestRequest{Content: []byte("text"), StorePath: "../outside", ChunkSize: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ingest.Ingest(context.Background(), tt.req)
			assert.ErrorIs(t, err, knowledgebase.ErrInvalidInput)
		})
	}
}

func TestIngestEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.Err = errors.New("connection refused")

	_, err := f.ingest.Ingest(context.Background(), knowledgebase.IngestRequest{
		Content:   []byte("some text"),
		StorePath: "s",
		ChunkSize: 100,
	})
	assert.ErrorIs(t, err, knowledgebase.ErrUpstream)
}

func TestIngestAppends(t *testing.T) {
	f := newFixture(t)

	f.ingestText(t, "s", "A B C D", 2, 0)
	f.ingestText(t, "s", "E F", 2, 0)

	count, err := f.coll.Count(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestCheckHealth(t *testing.T) {
	svc := knowledgebase.NewSystemService(map[string]knowledgebase.Pinger{
		"vectorstore": pinger{},
		"llm":         pinger{},
	})
	status, err := svc.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, knowledgebase.StatusUp, status.Components["llm"])

	svc = knowledgebase.NewSystemService(map[string]knowledgebase.Pinger{
		"vectorstore": pinger{},
		"llm":         pinger{err: errors.New("down")},
	})
	status, err = svc.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, knowledgebase.StatusDown, status.Components["llm"])
	assert.Equal(t, knowledgebase.StatusUp, status.Components["vectorstore"])
}
