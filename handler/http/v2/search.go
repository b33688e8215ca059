package v2

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docbuddy/src/core/knowledgebase"
)

type searchResult struct {
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
	Source         string  `json:"source,omitempty"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

// Search godoc
// @Summary Return the chunks most similar to a query
// @Tags search
// @Produce json
// @Param query query string true "Search text"
// @Param k query int false "Number of results" default(10)
// @Param database query string false "Vector store path"
// @Success 200 {object} searchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /search [post]
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("query")

	k := h.cfg.SearchK
	if raw := c.Query("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			sendError(c, fmt.Errorf("%w: k must be an integer", knowledgebase.ErrInvalidInput))
			return
		}
		k = v
	}

	hits, err := h.svc.Search.Search(c.Request.Context(), h.storeParam(c), query, k)
	if err != nil {
		sendError(c, err)
		return
	}
	if len(hits) == 0 {
		sendError(c, fmt.Errorf("%w: no matching results found", knowledgebase.ErrNoResults))
		return
	}

	results := make([]searchResult, len(hits))
	for i, hit := range hits {
		results[i] = searchResult{
			Content:        hit.Text,
			RelevanceScore: hit.Score,
			Source:         hit.Source(),
		}
	}

	sendJSON(c, http.StatusOK, searchResponse{Query: query, Results: results})
}
