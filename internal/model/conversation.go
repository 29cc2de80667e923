package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp LocalTime `json:"timestamp"`
}

// NewChatMessage 以当前时间创建一条消息。
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: LocalTime(time.Now())}
}
