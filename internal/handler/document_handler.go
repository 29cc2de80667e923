package handler

import (
	"docchat-go/internal/middleware"
	"docchat-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// ListDocuments 返回当前用户按文件聚合的文档列表。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docService.ListDocuments(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取文档列表成功", docs)
}

// ClearDocuments 删除当前用户的全部文档。
func (h *DocumentHandler) ClearDocuments(c *gin.Context) {
	result, err := h.docService.ClearDocuments(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "清空文档成功", result)
}
