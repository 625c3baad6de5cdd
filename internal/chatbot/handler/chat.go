// Package handler provides the HTTP handlers for the chatbot service.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/biz"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/metrics"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/id"
)

// ChatHandler handles the chat HTTP endpoints.
type ChatHandler struct {
	chatbot  *biz.Chatbot
	registry *biz.Registry
	metrics  *metrics.ChatMetrics
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatbot *biz.Chatbot, registry *biz.Registry) *ChatHandler {
	return &ChatHandler{
		chatbot:  chatbot,
		registry: registry,
		metrics:  metrics.GetChatMetrics(),
	}
}

// Predict answers a chat query. Every response is HTTP 200; clients read
// the error field to distinguish guidance from answers. Validation order
// matches the deployed contract: body, then message, then category.
func (h *ChatHandler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, model.PredictError{
			Error:  "No data received",
			Answer: "Please provide a valid query.",
		})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusOK, model.PredictError{
			Error:  "Empty message",
			Answer: "Please provide a question or message.",
		})
		return
	}

	if req.Category == "" {
		c.JSON(http.StatusOK, model.PredictError{
			Error:  "Category not specified",
			Answer: "Please select a category first.",
		})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" && req.NewSession {
		sessionID = id.NewUUID()
	}

	result := h.chatbot.Chat(c.Request.Context(), req.Message, req.Category, sessionID)

	c.JSON(http.StatusOK, model.PredictResponse{
		Answer:    result.Answer,
		Sources:   result.Sources,
		SessionID: sessionID,
	})
}

// Healthz reports liveness plus per-category availability.
func (h *ChatHandler) Healthz(c *gin.Context) {
	infos := h.registry.Infos()
	categories := make(map[string]string, len(infos))
	for _, info := range infos {
		categories[info.Name] = info.Availability
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"categories": categories,
	})
}

// Categories lists the category registry.
func (h *ChatHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": h.registry.Infos(),
	})
}

// Metrics renders the chat counters in Prometheus text format.
func (h *ChatHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
		[]byte(h.metrics.Export("mqa", "chatbot")))
}
