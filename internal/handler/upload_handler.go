package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"docchat-go/internal/apperr"
	"docchat-go/internal/middleware"
	"docchat-go/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// Ingester 是上传接口依赖的入库流程。
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
}

// UploadHandler 处理文件上传。
type UploadHandler struct {
	ingester       Ingester
	maxUploadBytes int64
}

// NewUploadHandler 创建一个新的 UploadHandler。maxUploadMB <= 0 时不限制大小。
func NewUploadHandler(ingester Ingester, maxUploadMB int64) *UploadHandler {
	return &UploadHandler{ingester: ingester, maxUploadBytes: maxUploadMB << 20}
}

// Upload 接收 multipart 表单中的 file 字段，同步完成提取、切块、向量化和入库。
func (h *UploadHandler) Upload(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		respondError(c, apperr.New(apperr.Unauthorized, "缺少用户身份"))
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.Newf(apperr.BadInput, "文件超过 %d MB 限制", h.maxUploadBytes>>20))
			return
		}
		respondError(c, apperr.Wrap(apperr.BadInput, err, "未能获取上传的文件"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.BadInput, err, "读取上传文件失败"))
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), pipeline.IngestRequest{
		OwnerID:  ownerID,
		FileName: header.Filename,
		Data:     data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文件处理成功", result)
}
