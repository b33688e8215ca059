package knowledgebase

import (
	"encoding/json"
	"fmt"
)

// MetadataSource is the metadata key holding the origin of a chunk.
const MetadataSource = "source"

// Chunk is a contiguous span of a source document.
// Start and End are rune offsets into the source, End exclusive.
type Chunk struct {
	ID        string            `json:"id,omitempty"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	Start     int               `json:"start"`
	End       int               `json:"end"`
}

// Source returns the source metadata of the chunk, empty when absent.
func (c Chunk) Source() string {
	return c.Metadata[MetadataSource]
}

// ScoredChunk is a search hit. Score is in [0, 1], higher is more relevant.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Role identifies who produced a turn.
type Role string

const (
	RoleHuman Role = "Human"
	RoleAI    Role = "AI"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleHuman || r == RoleAI
}

// Turn is one entry of a session transcript.
type Turn struct {
	Role    Role
	Content string
}

// MarshalJSON encodes a turn as a single entry object keyed by role,
// e.g. {"Human": "how do I search?"}.
func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(t.Role): t.Content})
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("turn must have exactly one role, got %d", len(m))
	}
	for role, content := range m {
		t.Role = Role(role)
		t.Content = content
	}
	if !t.Role.Valid() {
		return fmt.Errorf("unknown role %q", t.Role)
	}
	return nil
}

// String renders the turn as "<role>: <content>"
func (t Turn) String() string {
	return string(t.Role) + ": " + t.Content
}

// IngestRequest describes one document to ingest
type IngestRequest struct {
	Content      []byte
	Source       string
	StorePath    string
	ChunkSize    int
	ChunkOverlap int
}

// QueryRequest describes one question asked within a session
type QueryRequest struct {
	Query     string
	SessionID string
	StorePath string
	K         int
}

// Answer is the result of a retrieval-augmented query
type Answer struct {
	Formatted string        `json:"response"`
	Text      string        `json:"answer"`
	Sources   []string      `json:"sources"`
	Chunks    []ScoredChunk `json:"-"`
}

// ComponentStatus represents the status of system components
type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

// HealthStatus represents system health status
type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}
