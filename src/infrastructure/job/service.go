package job

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/infrastructure/log"
)

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	archive   DocumentArchive
	ingestion knowledgebase.IngestionService
	logger    watermill.LoggerAdapter
}

type JobMessage struct {
	JobID    int             `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// NewJobService wires the queue side of asynchronous ingestion. ingestion may
// be nil on the producer side, which only enqueues.
func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	archive DocumentArchive,
	ingestion knowledgebase.IngestionService,
	logger watermill.LoggerAdapter,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		archive:   archive,
		ingestion: ingestion,
		logger:    logger,
	}
}

// EnqueueIngest archives the document and schedules its ingestion
func (s *JobService) EnqueueIngest(ctx context.Context, req knowledgebase.IngestRequest) (*Job, error) {
	if req.StorePath == "" {
		return nil, fmt.Errorf("%w: store path must not be empty", knowledgebase.ErrInvalidInput)
	}

	key := path.Join(req.StorePath, watermill.NewUUID())
	if err := s.archive.Put(ctx, key, req.Content); err != nil {
		return nil, fmt.Errorf("%w: failed to archive document: %w", knowledgebase.ErrUpstream, err)
	}

	payload, err := json.Marshal(IngestPayload{
		ObjectKey:    key,
		Source:       req.Source,
		StorePath:    req.StorePath,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}

	return s.EnqueueJob(ctx, TaskTypeIngest, payload)
}

// EnqueueJob creates a new job and publishes it to the message queue
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msgPayload, err := json.Marshal(JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return nil, fmt.Errorf("%w: failed to publish job message: %w", knowledgebase.ErrUpstream, err)
	}

	log.Info("Job enqueued", "job_id", job.ID, "task_type", taskType)
	return job, nil
}

// Get returns the job with id
func (s *JobService) Get(ctx context.Context, id int) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// ProcessJobMessage processes a job message from the queue
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := msg.Context()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	err = s.processJob(ctx, job)

	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	return nil
}

func (s *JobService) processJob(ctx context.Context, job *Job) error {
	switch job.TaskType {
	case TaskTypeIngest:
		return s.ingest(ctx, job)
	default:
		return fmt.Errorf("unknown task type: %s", job.TaskType)
	}
}

func (s *JobService) ingest(ctx context.Context, job *Job) error {
	if s.ingestion == nil {
		return fmt.Errorf("ingestion is not configured on this worker")
	}

	var payload IngestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal ingest payload: %w", err)
	}

	content, err := s.archive.Get(ctx, payload.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to load archived document: %w", err)
	}

	n, err := s.ingestion.Ingest(ctx, knowledgebase.IngestRequest{
		Content:      content,
		Source:       payload.Source,
		StorePath:    payload.StorePath,
		ChunkSize:    payload.ChunkSize,
		ChunkOverlap: payload.ChunkOverlap,
	})
	if err != nil {
		return err
	}

	s.logger.Info("Ingest job executed", watermill.LogFields{
		"job_id": job.ID,
		"store":  payload.StorePath,
		"chunks": n,
	})
	return nil
}
