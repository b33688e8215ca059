package v2

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docbuddy/src/core/knowledgebase"
)

type ingestResponse struct {
	Message     string `json:"message"`
	ChunksCount int    `json:"chunks_count"`
}

type enqueueResponse struct {
	Message string `json:"message"`
	JobID   int    `json:"job_id"`
	Status  string `json:"status"`
}

// Ingest godoc
// @Summary Split a plain text file and add its chunks to a vector store
// @Tags ingest
// @Accept multipart/form-data
// @Produce json
// @Param chroma_path query string true "Vector store path"
// @Param file formData file true "UTF-8 text file"
// @Success 200 {object} ingestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /ingest [post]
func (h *Handler) Ingest(c *gin.Context) {
	req, err := h.readUpload(c)
	if err != nil {
		sendError(c, err)
		return
	}

	n, err := h.svc.Ingestion.Ingest(c.Request.Context(), req)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, ingestResponse{
		Message:     "Successfully processed and added to the vector store.",
		ChunksCount: n,
	})
}

// IngestAsync godoc
// @Summary Archive a plain text file and ingest it in the background
// @Tags ingest
// @Accept multipart/form-data
// @Produce json
// @Param chroma_path query string true "Vector store path"
// @Param file formData file true "UTF-8 text file"
// @Success 202 {object} enqueueResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /ingest/async [post]
func (h *Handler) IngestAsync(c *gin.Context) {
	req, err := h.readUpload(c)
	if err != nil {
		sendError(c, err)
		return
	}

	j, err := h.svc.Jobs.EnqueueIngest(c.Request.Context(), req)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusAccepted, enqueueResponse{
		Message: "Document queued for ingestion.",
		JobID:   j.ID,
		Status:  string(j.Status),
	})
}

// GetJob godoc
// @Summary Get the status of an ingestion job
// @Tags ingest
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} job.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		sendError(c, fmt.Errorf("%w: job id must be an integer", knowledgebase.ErrInvalidInput))
		return
	}

	j, err := h.svc.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, j)
}

// readUpload validates the multipart upload and builds the ingest request.
func (h *Handler) readUpload(c *gin.Context) (knowledgebase.IngestRequest, error) {
	storePath := c.Query("chroma_path")
	if storePath == "" {
		return knowledgebase.IngestRequest{}, fmt.Errorf("%w: chroma_path is required", knowledgebase.ErrInvalidInput)
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		return knowledgebase.IngestRequest{}, fmt.Errorf("%w: a file upload is required: %v", knowledgebase.ErrInvalidInput, err)
	}

	mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/plain" {
		return knowledgebase.IngestRequest{}, fmt.Errorf("%w: invalid file type, only .txt files are allowed", knowledgebase.ErrInvalidInput)
	}

	content, err := readFile(fh)
	if err != nil {
		return knowledgebase.IngestRequest{}, err
	}

	return knowledgebase.IngestRequest{
		Content:      content,
		Source:       fh.Filename,
		StorePath:    storePath,
		ChunkSize:    h.cfg.ChunkSize,
		ChunkOverlap: h.cfg.ChunkOverlap,
	}, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return content, nil
}
