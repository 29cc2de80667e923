package model

import "time"

// EsChunk 是 DocumentChunk 在 Elasticsearch 中的文档结构。
type EsChunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
	FileName   string    `json:"file_name"`
	ChunkIndex int       `json:"chunk_index"`
	CreatedAt  time.Time `json:"created_at"`
	OwnerID    string    `json:"owner_id"`
}
