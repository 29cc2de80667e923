package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"docchat-go/internal/apperr"
	"docchat-go/internal/middleware"
	"docchat-go/internal/service"
	"docchat-go/pkg/log"
	"docchat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatRequest 是问答接口的请求体，也是 WebSocket 文本帧的格式。
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatHandler 负责处理问答请求，支持普通 JSON 和 WebSocket 两种方式。
type ChatHandler struct {
	answerService service.AnswerService
	jwtManager    *token.JWTManager
	upgrader      websocket.Upgrader
}

// NewChatHandler 创建一个新的 ChatHandler。allowedOrigins 包含 "*" 时允许任意来源的 WebSocket 连接。
func NewChatHandler(answerService service.AnswerService, jwtManager *token.JWTManager, allowedOrigins []string) *ChatHandler {
	return &ChatHandler{
		answerService: answerService,
		jwtManager:    jwtManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Ask 处理 POST /api/v1/chat。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.BadInput, err, "无效的请求负载"))
		return
	}

	result, err := h.answerService.Answer(c.Request.Context(), req.Question, middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", result)
}

// Handle 处理一个传入的 WebSocket 连接，token 通过路径参数传入。
// 每个文本帧 {"question": "..."} 对应一个 {"responseText", "sources"} 或 {"error"} 帧。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
		return
	}
	ownerID := claims.OwnerID()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", ownerID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 兼容直接发送纯文本问题
			req.Question = string(message)
		}

		result, err := h.answerService.Answer(c.Request.Context(), req.Question, ownerID)
		var frame interface{} = result
		if err != nil {
			frame = gin.H{"error": apperr.Message(err)}
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			return
		}
	}
}
