// Package model 定义了与存储层对应的 Go 结构体。
package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// DocumentChunk 对应 document_chunks 表中的一行，是检索的最小单位。
// 写入后不可修改，只能随所属用户的文档一起整体删除。
type DocumentChunk struct {
	ID         string          `gorm:"primaryKey;type:varchar(36);column:id" json:"id"`
	Text       string          `gorm:"type:text;not null;column:text" json:"text"`
	Embedding  pgvector.Vector `gorm:"column:embedding" json:"-"`
	FileName   string          `gorm:"type:varchar(255);not null;column:file_name" json:"fileName"`
	ChunkIndex int             `gorm:"not null;column:chunk_index" json:"chunkIndex"`
	CreatedAt  time.Time       `gorm:"not null;column:created_at" json:"timestamp"`
	OwnerID    string          `gorm:"type:text;not null;index;column:owner_id" json:"ownerId"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// Vector 返回向量的 float32 切片形式。
func (c *DocumentChunk) Vector() []float32 {
	return c.Embedding.Slice()
}

// ChunkInput 是写入向量库之前的分块：文本、向量和来源信息。
type ChunkInput struct {
	Text       string
	Embedding  []float32
	FileName   string
	ChunkIndex int
}

// ScoredChunk 是检索结果，附带与查询向量的余弦相似度。
type ScoredChunk struct {
	DocumentChunk
	Similarity float64 `json:"similarity"`
}
