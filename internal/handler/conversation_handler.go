package handler

import (
	"net/http"

	"docchat-go/internal/middleware"
	"docchat-go/internal/service"
	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 处理获取用户对话历史的请求。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	history, err := h.service.GetConversationHistory(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		log.Errorf("[ConversationHandler] 获取对话历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve conversation history"})
		return
	}
	respondOK(c, "success", history)
}

// ClearConversation 删除用户当前的对话历史。
func (h *ConversationHandler) ClearConversation(c *gin.Context) {
	if err := h.service.ClearConversation(c.Request.Context(), middleware.OwnerID(c)); err != nil {
		log.Errorf("[ConversationHandler] 删除对话历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear conversation history"})
		return
	}
	respondOK(c, "success", nil)
}
