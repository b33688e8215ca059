package v2

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"docbuddy/src/core/knowledgebase"
)

type documentCountResponse struct {
	DocumentCount int `json:"document_count"`
}

type deleteCollectionResponse struct {
	Database string `json:"database"`
	Deleted  bool   `json:"deleted"`
}

// DocumentCount godoc
// @Summary Count the chunks stored at a path
// @Tags collection
// @Produce json
// @Param database query string true "Vector store path"
// @Success 200 {object} documentCountResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /document-count [get]
func (h *Handler) DocumentCount(c *gin.Context) {
	database := c.Query("database")
	if database == "" {
		sendError(c, fmt.Errorf("%w: database is required", knowledgebase.ErrInvalidInput))
		return
	}

	n, err := h.svc.Collection.Count(c.Request.Context(), database)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, documentCountResponse{DocumentCount: n})
}

// DeleteCollection godoc
// @Summary Delete every chunk stored at a path
// @Tags collection
// @Produce json
// @Param database query string true "Vector store path"
// @Success 200 {object} deleteCollectionResponse
// @Failure 400 {object} ErrorResponse
// @Router /collection [delete]
func (h *Handler) DeleteCollection(c *gin.Context) {
	database := c.Query("database")
	if database == "" {
		sendError(c, fmt.Errorf("%w: database is required", knowledgebase.ErrInvalidInput))
		return
	}

	deleted, err := h.svc.Collection.Delete(c.Request.Context(), database)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, deleteCollectionResponse{Database: database, Deleted: deleted})
}
