// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，记录每个请求的状态码、耗时和来源。
// 上传的文件和问题内容不写入日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"owner", OwnerID(c),
			"requestSize", c.Request.ContentLength,
			"responseSize", c.Writer.Size(),
			"errors", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}
