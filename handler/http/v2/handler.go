package v2

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/infrastructure/job"
	"docbuddy/src/infrastructure/log"
)

// JobQueue schedules ingestion in the background
type JobQueue interface {
	EnqueueIngest(ctx context.Context, req knowledgebase.IngestRequest) (*job.Job, error)
	Get(ctx context.Context, id int) (*job.Job, error)
}

// Services groups the collaborators behind the HTTP API. Jobs may be nil,
// in which case the asynchronous routes are not registered.
type Services struct {
	Ingestion  knowledgebase.IngestionService
	Collection knowledgebase.CollectionService
	Search     knowledgebase.SearchService
	Chat       knowledgebase.ChatService
	System     knowledgebase.SystemService
	Jobs       JobQueue
}

// Config holds request defaults
type Config struct {
	RoutePrefix    string
	DefaultStore   string
	ChunkSize      int
	ChunkOverlap   int
	SearchK        int
	MaxUploadBytes int64
}

const (
	DefaultRoutePrefix    = "/crustdata"
	DefaultSearchK        = 10
	DefaultMaxUploadBytes = 32 << 20
)

type Handler struct {
	svc Services
	cfg Config
}

func NewHandler(svc Services, cfg Config) *Handler {
	if cfg.SearchK <= 0 {
		cfg.SearchK = DefaultSearchK
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		svc: svc,
		cfg: cfg,
	}
}

// RegisterRoutes registers all API routes under the configured prefix
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group(h.cfg.RoutePrefix)

	// Ingestion and collection routes
	g.POST("/ingest", h.Ingest)
	g.GET("/document-count", h.DocumentCount)
	g.DELETE("/collection", h.DeleteCollection)
	if h.svc.Jobs != nil {
		g.POST("/ingest/async", h.IngestAsync)
		g.GET("/jobs/:id", h.GetJob)
	}

	// Retrieval routes
	g.POST("/search", h.Search)
	g.POST("/sessions", h.CreateSession)
	g.POST("/query/:session_id", h.Query)
	g.GET("/retrieve_chat_history/:session_id", h.RetrieveChatHistory)
	g.DELETE("/delete_chat_history/:session_id", h.DeleteChatHistory)

	// System routes
	g.GET("/healthcheck", h.Healthcheck)
	g.GET("/health", h.CheckHealth)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func sendError(c *gin.Context, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, knowledgebase.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, knowledgebase.ErrNoResults):
		status, code = http.StatusNotFound, "NO_RESULTS"
	case errors.Is(err, knowledgebase.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, knowledgebase.ErrTimeout):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, knowledgebase.ErrUpstream):
		status, code = http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL_ERROR"
	}

	if status >= http.StatusInternalServerError {
		log.Error(err, "Request failed", "path", c.FullPath(), "status", status)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:   code,
		Detail: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// storeParam returns the store named by the database query parameter, or
// the default store when it is absent.
func (h *Handler) storeParam(c *gin.Context) string {
	if db := c.Query("database"); db != "" {
		return db
	}
	return h.cfg.DefaultStore
}
