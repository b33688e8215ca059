package v2

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docbuddy/src/core/knowledgebase"
)

type queryResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type historyResponse struct {
	Status  string               `json:"status"`
	Message string               `json:"message"`
	History []knowledgebase.Turn `json:"history,omitempty"`
}

// CreateSession godoc
// @Summary Allocate a new chat session id
// @Tags chat
// @Produce json
// @Success 201 {object} sessionResponse
// @Router /sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	sendJSON(c, http.StatusCreated, sessionResponse{SessionID: uuid.NewString()})
}

// Query godoc
// @Summary Answer a question from the documentation
// @Tags chat
// @Produce json
// @Param session_id path string true "Chat session ID"
// @Param query query string true "Question"
// @Param database query string false "Vector store path"
// @Success 200 {object} queryResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /query/{session_id} [post]
func (h *Handler) Query(c *gin.Context) {
	ans, err := h.svc.Chat.Answer(c.Request.Context(), knowledgebase.QueryRequest{
		Query:     c.Query("query"),
		SessionID: c.Param("session_id"),
		StorePath: h.storeParam(c),
	})
	if err != nil {
		sendError(c, err)
		return
	}
	if strings.TrimSpace(ans.Text) == "" {
		sendError(c, fmt.Errorf("%w: no matching results found", knowledgebase.ErrNoResults))
		return
	}

	sendJSON(c, http.StatusOK, queryResponse{Response: ans.Text, Sources: ans.Sources})
}

// RetrieveChatHistory godoc
// @Summary Get the transcript of a session
// @Tags chat
// @Produce json
// @Param session_id path string true "Chat session ID"
// @Success 200 {object} historyResponse
// @Failure 404 {object} ErrorResponse
// @Router /retrieve_chat_history/{session_id} [get]
func (h *Handler) RetrieveChatHistory(c *gin.Context) {
	history, err := h.svc.Chat.GetHistory(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, historyResponse{
		Status:  "success",
		Message: "Chat history retrieved successfully.",
		History: history,
	})
}

// DeleteChatHistory godoc
// @Summary Delete the transcript of a session
// @Tags chat
// @Produce json
// @Param session_id path string true "Chat session ID"
// @Success 200 {object} historyResponse
// @Failure 404 {object} ErrorResponse
// @Router /delete_chat_history/{session_id} [delete]
func (h *Handler) DeleteChatHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.svc.Chat.DeleteHistory(c.Request.Context(), sessionID); err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, historyResponse{
		Status:  "success",
		Message: fmt.Sprintf("Chat history for session %s deleted successfully.", sessionID),
	})
}
