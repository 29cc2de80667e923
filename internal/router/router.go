// Package router 注册所有 HTTP 路由。
package router

import (
	"docchat-go/internal/app"
	"docchat-go/internal/handler"
	"docchat-go/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// New 创建路由引擎并挂载中间件与处理器。
func New(a *app.App) *gin.Engine {
	cfg := a.Config

	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.Telemetry.Enabled {
		r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}

	uploadHandler := handler.NewUploadHandler(a.Processor, cfg.Server.MaxUploadMB)
	documentHandler := handler.NewDocumentHandler(a.Documents)
	chatHandler := handler.NewChatHandler(a.Answers, a.JWT, cfg.Server.AllowedOrigins)
	conversationHandler := handler.NewConversationHandler(a.Conversations)

	r.GET("/health", handler.NewHealthHandler(a.HealthChecks).Health)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(a.JWT))
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("/upload", uploadHandler.Upload)
			documents.GET("", documentHandler.ListDocuments)
			documents.DELETE("", documentHandler.ClearDocuments)
		}

		apiV1.POST("/chat", chatHandler.Ask)

		conversation := apiV1.Group("/conversation")
		{
			conversation.GET("", conversationHandler.GetConversations)
			conversation.DELETE("", conversationHandler.ClearConversation)
		}
	}

	// WebSocket 无法携带自定义请求头，token 通过路径传入
	r.GET("/chat/:token", chatHandler.Handle)

	return r
}
