package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/infrastructure/job"
)

type memoryRepo struct {
	mu   sync.Mutex
	jobs map[int]*job.Job
	next int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{jobs: make(map[int]*job.Job)}
}

func (r *memoryRepo) Create(ctx context.Context, taskType string, payload json.RawMessage) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	j := &job.Job{ID: r.next, TaskType: taskType, Payload: payload, Status: job.JobStatusPending}
	r.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %d", knowledgebase.ErrNotFound, id)
	}
	cp := *j
	return &cp, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int, status job.JobStatus, errStr *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %d", knowledgebase.ErrNotFound, id)
	}
	j.Status = status
	j.Error = errStr
	return nil
}

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (a *memoryArchive) Put(ctx context.Context, key string, data []byte) error {
	if a.putErr != nil {
		return a.putErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = append([]byte(nil), data...)
	return nil
}

func (a *memoryArchive) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", knowledgebase.ErrNotFound, key)
	}
	return data, nil
}

type recordingIngestion struct {
	mu   sync.Mutex
	reqs []knowledgebase.IngestRequest
	err  error
}

func (r *recordingIngestion) Ingest(ctx context.Context, req knowledgebase.IngestRequest) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return 0, r.err
	}
	return 3, nil
}

type fixture struct {
	pubSub    *gochannel.GoChannel
	repo      *memoryRepo
	archive   *memoryArchive
	ingestion *recordingIngestion
	svc       *job.JobService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pubSub:    gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{}),
		repo:      newMemoryRepo(),
		archive:   &memoryArchive{objects: make(map[string][]byte)},
		ingestion: &recordingIngestion{},
	}
	t.Cleanup(func() { f.pubSub.Close() })
	f.svc = job.NewJobService(f.pubSub, f.repo, f.archive, f.ingestion, watermill.NopLogger{})
	return f
}

func (f *fixture) receive(t *testing.T) *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	msgs, err := f.pubSub.Subscribe(ctx, job.Topic)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no job message published")
		return nil
	}
}

func TestEnqueueIngestThenProcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	j, err := f.svc.EnqueueIngest(ctx, knowledgebase.IngestRequest{
		Content:      []byte("POST /search finds people."),
		Source:       "api.txt",
		StorePath:    "crust_v5",
		ChunkSize:    100,
		ChunkOverlap: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusPending, j.Status)
	assert.Len(t, f.archive.objects, 1)

	msg := f.receive(t)
	var jobMsg job.JobMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &jobMsg))
	assert.Equal(t, j.ID, jobMsg.JobID)
	assert.Equal(t, job.TaskTypeIngest, jobMsg.TaskType)

	require.NoError(t, f.svc.ProcessJobMessage(msg))

	require.Len(t, f.ingestion.reqs, 1)
	req := f.ingestion.reqs[0]
	assert.Equal(t, "POST /search finds people.", string(req.Content))
	assert.Equal(t, "api.txt", req.Source)
	assert.Equal(t, "crust_v5", req.StorePath)
	assert.Equal(t, 100, req.ChunkSize)
	assert.Equal(t, 10, req.ChunkOverlap)

	got, err := f.svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusCompleted, got.Status)
	assert.Nil(t, got.Error)
}

func TestProcessFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingestion.err = fmt.Errorf("%w: embedder down", knowledgebase.ErrUpstream)

	j, err := f.svc.EnqueueIngest(ctx, knowledgebase.IngestRequest{Content: []byte("text"), StorePath: "s"})
	require.NoError(t, err)

	err = f.svc.ProcessJobMessage(f.receive(t))
	assert.ErrorIs(t, err, knowledgebase.ErrUpstream)

	got, err := f.svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "embedder down")
}

func TestEnqueueIngestErrors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	_, err := f.svc.EnqueueIngest(ctx, knowledgebase.IngestRequest{Content: []byte("text")})
	assert.ErrorIs(t, err, knowledgebase.ErrInvalidInput)

	f.archive.putErr = errors.New("bucket missing")
	_, err = f.svc.EnqueueIngest(ctx, knowledgebase.IngestRequest{Content: []byte("text"), StorePath: "s"})
	assert.ErrorIs(t, err, knowledgebase.ErrUpstream)
	assert.Empty(t, f.repo.jobs, "nothing is recorded when archiving fails")
}

func TestProcessUnknownJob(t *testing.T) {
	f := newFixture(t)

	payload, err := json.Marshal(job.JobMessage{JobID: 42, TaskType: job.TaskTypeIngest})
	require.NoError(t, err)

	err = f.svc.ProcessJobMessage(message.NewMessage(watermill.NewUUID(), payload))
	assert.ErrorIs(t, err, knowledgebase.ErrNotFound)
}

func TestProcessUnknownTaskType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	j, err := f.svc.EnqueueJob(ctx, "translate", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.Error(t, f.svc.ProcessJobMessage(f.receive(t)))

	got, err := f.svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusFailed, got.Status)
}
