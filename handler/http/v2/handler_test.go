package v2_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v2 "docbuddy/handler/http/v2"
	"docbuddy/src/core/chunker"
	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/core/knowledgebase/kbtest"
	"docbuddy/src/core/session"
	"docbuddy/src/fsutil"
	"docbuddy/src/infrastructure/job"
	"docbuddy/src/storage/local"
)

const apiDoc = "Search people with POST /search.\n\nEnrich companies with GET /enrich."

type fakeJobs struct {
	enqueued []knowledgebase.IngestRequest
	err      error
}

func (f *fakeJobs) EnqueueIngest(ctx context.Context, req knowledgebase.IngestRequest) (*job.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, req)
	return &job.Job{ID: len(f.enqueued), TaskType: job.TaskTypeIngest, Status: job.JobStatusPending}, nil
}

func (f *fakeJobs) Get(ctx context.Context, id int) (*job.Job, error) {
	if id < 1 || id > len(f.enqueued) {
		return nil, fmt.Errorf("%w: job %d", knowledgebase.ErrNotFound, id)
	}
	return &job.Job{ID: id, TaskType: job.TaskTypeIngest, Status: job.JobStatusCompleted}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	engine *gin.Engine
	llm    *kbtest.LLM
	jobs   *fakeJobs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := local.NewRegistry(t.TempDir(), &kbtest.LetterEmbedder{}, fsutil.NewLocalFileStore())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	llm := &kbtest.LLM{Reply: "Use POST /search."}
	jobs := &fakeJobs{}
	search := knowledgebase.NewSearchService(reg, time.Second)

	h := v2.NewHandler(v2.Services{
		Ingestion:  knowledgebase.NewIngestionService(chunker.NewBoundary(), reg, time.Second),
		Collection: knowledgebase.NewCollectionService(reg, time.Second),
		Search:     search,
		Chat: knowledgebase.NewChatService(search, session.NewMemoryStore(), llm, knowledgebase.ChatConfig{
			DefaultStore: "crust_v5",
		}),
		System: knowledgebase.NewSystemService(map[string]knowledgebase.Pinger{"vectorstore": reg}),
		Jobs:   jobs,
	}, v2.Config{
		RoutePrefix:  v2.DefaultRoutePrefix,
		DefaultStore: "crust_v5",
		ChunkSize:    40,
		ChunkOverlap: 0,
	})

	r := gin.New()
	h.RegisterRoutes(r)
	return &testServer{engine: r, llm: llm, jobs: jobs}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func uploadRequest(t *testing.T, target, filename, contentType, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *testServer) ingest(t *testing.T) {
	t.Helper()
	w, body := s.do(t, uploadRequest(t, "/crustdata/ingest?chroma_path=crust_v5", "api.txt", "text/plain", apiDoc))
	require.Equal(t, http.StatusOK, w.Code, body)
}

func TestIngestAndCount(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, uploadRequest(t, "/crustdata/ingest?chroma_path=crust_v5", "api.txt", "text/plain; charset=utf-8", apiDoc))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["chunks_count"])
	assert.NotEmpty(t, body["message"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/document-count?database=crust_v5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["document_count"])
}

func TestIngestRejectsBadUploads(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "pdf", req: uploadRequest(t, "/crustdata/ingest?chroma_path=x", "api.pdf", "application/pdf", "%PDF")},
		{name: "missing path", req: uploadRequest(t, "/crustdata/ingest", "api.txt", "text/plain", "text")},
		{name: "binary text", req: uploadRequest(t, "/crustdata/ingest?chroma_path=x", "api.txt", "text/plain", "\xff\xfe")},
		{name: "no file", req: httptest.NewRequest(http.MethodPost, "/crustdata/ingest?chroma_path=x", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_INPUT", body["code"])
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestDocumentCountUnknownStore(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/document-count?database=nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/document-count", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteCollection(t *testing.T) {
	s := newTestServer(t)
	s.ingest(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodDelete, "/crustdata/collection?database=crust_v5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["deleted"])

	w, body = s.do(t, httptest.NewRequest(http.MethodDelete, "/crustdata/collection?database=crust_v5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["deleted"])
	for _, database := range []string{".", "/tmp/x", "../elsewhere"} {
		w, body = s.do(t, httptest.NewRequest(http.MethodDelete, "/crustdata/collection?database="+url.QueryEscape(database), nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, database)
		assert.Equal(t, "INVALID_INPUT", body["code"], database)
	}
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodPost, "/crustdata/search?query=enrich", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "empty store")
	assert.Equal(t, "NO_RESULTS", body["code"])

	s.ingest(t)

	w, body = s.do(t, httptest.NewRequest(http.MethodPost, "/crustdata/search?query=enrich+companies&k=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enrich companies", body["query"])
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	top := results[0].(map[string]interface{})
	assert.Contains(t, top["content"], "GET /enrich")
	assert.Greater(t, top["relevance_score"], 0.5)

	w, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/crustdata/search?query=x&k=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/crustdata/search?query=x&k=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryAndHistory(t *testing.T) {
	s := newTestServer(t)
	s.ingest(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodPost, "/crustdata/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := body["session_id"].(string)
	require.NotEmpty(t, sessionID)

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/retrieve_chat_history/"+sessionID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, httptest.NewRequest(http.MethodPost, "/crustdata/query/"+sessionID+"?query=how+to+search", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Use POST /search.", body["response"])
	assert.Equal(t, []interface{}{"api.txt", "api.txt"}, body["sources"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/retrieve_chat_history/"+sessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"Human": "how to search"},
		map[string]interface{}{"AI": "Use POST /search."},
	}, body["history"])

	w, body = s.do(t, httptest.NewRequest(http.MethodDelete, "/crustdata/delete_chat_history/"+sessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["message"], sessionID)

	w, _ = s.do(t, httptest.NewRequest(http.MethodDelete, "/crustdata/delete_chat_history/"+sessionID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *testServer)
		target   string
		wantCode int
		wantKind string
	}{
		{
			name:     "missing query",
			target:   "/crustdata/query/s1",
			wantCode: http.StatusBadRequest,
			wantKind: "INVALID_INPUT",
		},
		{
			name:     "llm failure",
			setup:    func(s *testServer) { s.llm.Err = errors.New("provider down") },
			target:   "/crustdata/query/s1?query=hi",
			wantCode: http.StatusBadGateway,
			wantKind: "UPSTREAM_ERROR",
		},
		{
			name:     "empty answer",
			setup:    func(s *testServer) { s.llm.Reply = "  " },
			target:   "/crustdata/query/s1?query=hi",
			wantCode: http.StatusNotFound,
			wantKind: "NO_RESULTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if tt.setup != nil {
				tt.setup(s)
			}
			w, body := s.do(t, httptest.NewRequest(http.MethodPost, tt.target, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantKind, body["code"])
		})
	}
}

func TestAsyncIngest(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, uploadRequest(t, "/crustdata/ingest/async?chroma_path=crust_v5", "api.txt", "text/plain", apiDoc))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(1), body["job_id"])
	assert.Equal(t, "pending", body["status"])

	require.Len(t, s.jobs.enqueued, 1)
	assert.Equal(t, "crust_v5", s.jobs.enqueued[0].StorePath)
	assert.Equal(t, "api.txt", s.jobs.enqueued[0].Source)
	assert.Equal(t, apiDoc, string(s.jobs.enqueued[0].Content))

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/jobs/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["status"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/jobs/7", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/jobs/seven", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/healthcheck", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/crustdata/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthReportsDownComponents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := v2.NewHandler(v2.Services{
		System: knowledgebase.NewSystemService(map[string]knowledgebase.Pinger{
			"llm": pinger{err: errors.New("refused")},
		}),
	}, v2.Config{RoutePrefix: v2.DefaultRoutePrefix})
	r := gin.New()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/crustdata/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"llm":"down"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/crustdata/ingest/async", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "async routes need a job queue")
}
