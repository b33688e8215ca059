package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const (
	// Topic is the queue ingestion jobs are published on
	Topic          = "jobs"
	TaskTypeIngest = "ingest"
)

// Job represents a background job
type Job struct {
	ID        int             `json:"id" gorm:"primaryKey"`
	TaskType  string          `json:"task_type" gorm:"index"`
	Payload   json.RawMessage `json:"payload" gorm:"type:jsonb"`
	Status    JobStatus       `json:"status"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IngestPayload points at an archived document and the store it goes into
type IngestPayload struct {
	ObjectKey    string `json:"object_key"`
	Source       string `json:"source"`
	StorePath    string `json:"store_path"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// JobRepository defines the interface for job persistence
type JobRepository interface {
	Create(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error)
	// Get returns knowledgebase.ErrNotFound for an unknown id.
	Get(ctx context.Context, id int) (*Job, error)
	UpdateStatus(ctx context.Context, id int, status JobStatus, err *string) error
}

// DocumentArchive stores raw documents between upload and ingestion
type DocumentArchive interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
