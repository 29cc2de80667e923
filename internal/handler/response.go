// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"docchat-go/internal/apperr"
	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// respondOK 以统一的 {code, message, data} 结构返回成功结果。
func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// respondError 按错误种类映射状态码，返回 {error, details}。
// details 携带底层原因，便于排查；服务内部错误只记录日志，不把原因返回给客户端。
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"error": apperr.Message(err)}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Err != nil && status < http.StatusInternalServerError {
		body["details"] = appErr.Err.Error()
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
