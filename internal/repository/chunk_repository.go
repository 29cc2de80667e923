package repository

import (
	"context"
	"fmt"
	"time"

	"docchat-go/internal/model"
	"docchat-go/pkg/log"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// ChunkRepository 是基于 PostgreSQL + pgvector 的分块存储，实现 vectorstore.Backend。
type ChunkRepository interface {
	Migrate(ctx context.Context, dimensions int, createMatchFunction bool) error
	Insert(ctx context.Context, chunk *model.DocumentChunk) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.DocumentChunk, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
	MatchDocuments(ctx context.Context, query []float32, threshold float64, count int, ownerID string) ([]model.ScoredChunk, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

const createChunkTableSQL = `
CREATE TABLE IF NOT EXISTS document_chunks (
	id          varchar(36) PRIMARY KEY,
	text        text NOT NULL,
	embedding   vector(%d) NOT NULL,
	file_name   varchar(255) NOT NULL,
	chunk_index int NOT NULL,
	created_at  timestamptz NOT NULL,
	owner_id    text NOT NULL
)`

// 旧版本建表时 owner_id 为 varchar(64)，varchar 到 text 的转换不会重写表。
const widenOwnerColumnSQL = `ALTER TABLE document_chunks ALTER COLUMN owner_id TYPE text`

const createChunkIndexSQL = `CREATE INDEX IF NOT EXISTS idx_document_chunks_owner_created ON document_chunks (owner_id, created_at DESC)`

// match_documents 以余弦距离排序，只返回属于 filter_owner 且相似度大于阈值的分块。
const createMatchFunctionSQL = `
CREATE OR REPLACE FUNCTION match_documents(
	query_embedding vector(%d),
	match_threshold float,
	match_count int,
	filter_owner text
)
RETURNS TABLE (
	id text,
	text text,
	file_name text,
	chunk_index int,
	created_at timestamptz,
	owner_id text,
	similarity float
)
LANGUAGE sql STABLE
AS $$
	SELECT d.id::text, d.text, d.file_name::text, d.chunk_index, d.created_at, d.owner_id::text,
	       (1 - (d.embedding <=> query_embedding))::float AS similarity
	FROM document_chunks d
	WHERE d.owner_id = filter_owner
	  AND 1 - (d.embedding <=> query_embedding) > match_threshold
	ORDER BY d.embedding <=> query_embedding
	LIMIT match_count;
$$`

func migrationStatements(dimensions int, createMatchFunction bool) []string {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(createChunkTableSQL, dimensions),
		widenOwnerColumnSQL,
		createChunkIndexSQL,
	}
	if createMatchFunction {
		stmts = append(stmts, fmt.Sprintf(createMatchFunctionSQL, dimensions))
	}
	return stmts
}

// Migrate 创建 vector 扩展、分块表和索引。createMatchFunction 为 false 时假定 match_documents 已由 DBA 维护。
func (r *chunkRepository) Migrate(ctx context.Context, dimensions int, createMatchFunction bool) error {
	db := r.db.WithContext(ctx)
	for _, stmt := range migrationStatements(dimensions, createMatchFunction) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("迁移 document_chunks 失败: %w", err)
		}
	}
	log.Infof("[ChunkRepository] document_chunks 表已就绪, 维度: %d", dimensions)
	return nil
}

// Insert 写入单个分块。
func (r *chunkRepository) Insert(ctx context.Context, chunk *model.DocumentChunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

// ListByOwner 按 created_at 倒序读取分块，limit <= 0 时读取全部。
func (r *chunkRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}

func (r *chunkRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&model.DocumentChunk{})
	return res.RowsAffected, res.Error
}

type matchRow struct {
	ID         string
	Text       string
	FileName   string
	ChunkIndex int
	CreatedAt  time.Time
	OwnerID    string
	Similarity float64
}

// MatchDocuments 调用数据库中的 match_documents 函数。
func (r *chunkRepository) MatchDocuments(ctx context.Context, query []float32, threshold float64, count int, ownerID string) ([]model.ScoredChunk, error) {
	var rows []matchRow
	err := r.db.WithContext(ctx).
		Raw("SELECT * FROM match_documents(?, ?, ?, ?)", pgvector.NewVector(query), threshold, count, ownerID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("match_documents: %w", err)
	}
	return toScoredChunks(rows), nil
}

// toScoredChunks 把 match_documents 的结果行转换为检索结果，函数不返回向量列。
func toScoredChunks(rows []matchRow) []model.ScoredChunk {
	results := make([]model.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		results = append(results, model.ScoredChunk{
			DocumentChunk: model.DocumentChunk{
				ID:         row.ID,
				Text:       row.Text,
				FileName:   row.FileName,
				ChunkIndex: row.ChunkIndex,
				CreatedAt:  row.CreatedAt,
				OwnerID:    row.OwnerID,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
