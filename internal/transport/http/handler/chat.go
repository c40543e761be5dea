package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type ChatHandler struct {
	ragService *app.RAGService
}

type QueryRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question" binding:"required"`
	TopK           int    `json:"top_k" binding:"omitempty,gt=0,lte=20"`
}

func NewChatHandler(ragService *app.RAGService) *ChatHandler {
	return &ChatHandler{ragService: ragService}
}

// Query streams the answer to a question as server-sent events. Each stream
// event is written as an SSE message whose event name is the event type and
// whose data line carries the JSON payload.
func (h *ChatHandler) Query(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	events, err := h.ragService.QueryStream(c.Request.Context(), app.QueryInput{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Question:       req.Question,
		TopK:           req.TopK,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrConversationNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	for event := range events {
		payload, marshalErr := json.Marshal(event.Data)
		if marshalErr != nil {
			continue
		}
		if _, writeErr := c.Writer.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(payload) + "\n\n")); writeErr != nil {
			return
		}
		flusher.Flush()
	}
}
