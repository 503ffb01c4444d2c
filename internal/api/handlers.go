package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopassist/internal/logging"
	"shopassist/internal/models"
	"shopassist/internal/service/conversation"
)

const healthText = "LangGraph Agent Server"

// Agent answers one user message within a thread.
type Agent interface {
	Call(ctx context.Context, threadID, text string) (string, error)
}

// HistoryReader exposes stored threads for the history view.
type HistoryReader interface {
	Thread(ctx context.Context, threadID string) (*models.Thread, error)
	Load(ctx context.Context, threadID string) ([]models.Message, error)
}

// Handler wires HTTP routes to the conversation loop.
type Handler struct {
	agent   Agent
	history HistoryReader
	logger  *zap.Logger
	newID   func() (string, error)
}

// NewHandler constructs a Handler instance. history may be nil, which disables the history route.
func NewHandler(agent Agent, history HistoryReader, logger *zap.Logger) *Handler {
	return &Handler{
		agent:   agent,
		history: history,
		logger:  logging.OrNop(logger),
		newID:   newThreadID,
	}
}

// newThreadID mints a time-ordered id for a new conversation.
func newThreadID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.health)
	router.POST("/chat", h.startChat)
	router.POST("/chat/:threadId", h.continueChat)
	if h.history != nil {
		router.GET("/chat/:threadId/messages", h.threadMessages)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, healthText)
}

type chatRequest struct {
	Message string `json:"message"`
}

func bindMessage(c *gin.Context) (string, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return "", false
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return "", false
	}
	return req.Message, true
}

func (h *Handler) startChat(c *gin.Context) {
	message, ok := bindMessage(c)
	if !ok {
		return
	}
	threadID, err := h.newID()
	if err != nil {
		h.internalError(c, "mint thread id", err)
		return
	}
	h.logger.Info("starting new conversation", zap.String("thread_id", threadID))

	response, err := h.agent.Call(c.Request.Context(), threadID, message)
	if err != nil {
		h.internalError(c, "start conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"threadId": threadID,
		"response": response,
	})
}

func (h *Handler) continueChat(c *gin.Context) {
	threadID := strings.TrimSpace(c.Param("threadId"))
	message, ok := bindMessage(c)
	if !ok {
		return
	}
	response, err := h.agent.Call(c.Request.Context(), threadID, message)
	if err != nil {
		h.internalError(c, "continue conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": response})
}

func (h *Handler) threadMessages(c *gin.Context) {
	threadID := strings.TrimSpace(c.Param("threadId"))
	ctx := c.Request.Context()
	if _, err := h.history.Thread(ctx, threadID); err != nil {
		if errors.Is(err, conversation.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		h.internalError(c, "get thread", err)
		return
	}
	messages, err := h.history.Load(ctx, threadID)
	if err != nil {
		h.internalError(c, "load thread", err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"threadId": threadID,
		"messages": messages,
	})
}

// internalError logs the cause and hides it from the client.
func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error(op+" failed",
		zap.String("path", c.FullPath()),
		zap.String("thread_id", c.Param("threadId")),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
