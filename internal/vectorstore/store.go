// Package vectorstore 负责分块向量的持久化与最近邻检索。
// Store 在进程启动时创建一次，通过依赖注入交给各个服务；具体存储由 Backend 实现。
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docchat-go/internal/apperr"
	"docchat-go/internal/model"
	"docchat-go/pkg/log"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

const (
	DefaultTopK           = 5
	DefaultThreshold      = 0.5
	DefaultFallbackWindow = 500

	// MaxOwnerIDLength 与 upload_records.owner_id 的列宽一致。
	MaxOwnerIDLength = 255
)

// ErrMatchUnavailable 表示后端不提供服务端相似度检索，Store 会直接走客户端回退路径。
var ErrMatchUnavailable = errors.New("server-side match unavailable")

// Backend 是向量存储后端需要实现的最小行存储接口。
// 所有读操作都必须只返回 ownerID 名下的数据。
type Backend interface {
	// Insert 写入一条分块。
	Insert(ctx context.Context, chunk *model.DocumentChunk) error
	// ListByOwner 按创建时间倒序返回分块，limit <= 0 表示不限制。
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.DocumentChunk, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
	// MatchDocuments 在服务端完成相似度排序，返回相似度大于 threshold 的至多 count 条结果。
	MatchDocuments(ctx context.Context, query []float32, threshold float64, count int, ownerID string) ([]model.ScoredChunk, error)
}

// Options 控制检索策略。零值字段使用默认值。
type Options struct {
	Dimensions     int
	TopK           int
	Threshold      float64
	FallbackWindow int
}

// Store 是向量库对外暴露的唯一入口。
type Store struct {
	backend Backend
	opts    Options
	now     func() time.Time
	newID   func() string
}

// New 创建一个 Store。Threshold 没有零值替换，调用方需要显式传入（配置层默认 0.5）。
func New(backend Backend, opts Options) *Store {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.FallbackWindow <= 0 {
		opts.FallbackWindow = DefaultFallbackWindow
	}
	return &Store{
		backend: backend,
		opts:    opts,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// DefaultTopK 返回配置的默认 topK。
func (s *Store) DefaultTopK() int {
	return s.opts.TopK
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperr.New(apperr.Unauthorized, "缺少用户身份")
	}
	if n := utf8.RuneCountInString(ownerID); n > MaxOwnerIDLength {
		return apperr.New(apperr.Unauthorized, fmt.Sprintf("用户身份过长: %d 个字符，最多 %d 个", n, MaxOwnerIDLength))
	}
	return nil
}

// AddDocuments 为每个分块生成新的 ID 并逐条写入，返回生成的 ID 列表。
// 任意一条写入失败立即返回，之前已经写入的分块不会回滚。
func (s *Store) AddDocuments(ctx context.Context, chunks []model.ChunkInput, ownerID string) ([]string, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if s.opts.Dimensions > 0 {
		for _, c := range chunks {
			if len(c.Embedding) != s.opts.Dimensions {
				return nil, apperr.Newf(apperr.StorageWriteFailed,
					"分块 %d 的向量维度为 %d, 期望 %d", c.ChunkIndex, len(c.Embedding), s.opts.Dimensions)
			}
		}
	}

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		row := &model.DocumentChunk{
			ID:         s.newID(),
			Text:       c.Text,
			Embedding:  pgvector.NewVector(c.Embedding),
			FileName:   c.FileName,
			ChunkIndex: c.ChunkIndex,
			CreatedAt:  s.now().UTC(),
			OwnerID:    ownerID,
		}
		if err := s.backend.Insert(ctx, row); err != nil {
			log.Errorf("[VectorStore] 写入分块失败, owner: %s, file: %s, chunk: %d, 已写入: %d, error: %v",
				ownerID, c.FileName, c.ChunkIndex, len(ids), err)
			return ids, apperr.Wrap(apperr.StorageWriteFailed,
				fmt.Errorf("insert chunk %d of %s: %w", c.ChunkIndex, c.FileName, err), "写入向量库失败")
		}
		ids = append(ids, row.ID)
	}
	log.Infof("[VectorStore] 已写入 %d 个分块, owner: %s", len(ids), ownerID)
	return ids, nil
}

// Search 返回 ownerID 名下与查询向量最相似的至多 topK 个分块，只保留相似度严格大于阈值的结果。
// 优先使用后端的服务端检索，失败或不可用时取最近的 FallbackWindow 条分块在进程内计算余弦相似度。
func (s *Store) Search(ctx context.Context, query []float32, topK int, ownerID string) ([]model.ScoredChunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	results, err := s.backend.MatchDocuments(ctx, query, s.opts.Threshold, topK, ownerID)
	if err == nil {
		return rank(results, s.opts.Threshold, topK), nil
	}
	if !errors.Is(err, ErrMatchUnavailable) {
		log.Warnf("[VectorStore] 服务端相似度检索失败，回退到客户端计算, owner: %s, error: %v", ownerID, err)
	}

	return s.searchFallback(ctx, query, topK, ownerID)
}

func (s *Store) searchFallback(ctx context.Context, query []float32, topK int, ownerID string) ([]model.ScoredChunk, error) {
	candidates, err := s.backend.ListByOwner(ctx, ownerID, s.opts.FallbackWindow)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageReadFailed, err, "读取向量库失败")
	}

	scored := make([]model.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, model.ScoredChunk{
			DocumentChunk: c,
			Similarity:    CosineSimilarity(query, c.Vector()),
		})
	}
	ranked := rank(scored, s.opts.Threshold, topK)
	log.Infof("[VectorStore] 客户端检索完成, 候选: %d, 命中: %d", len(candidates), len(ranked))
	return ranked, nil
}

// GetAllDocuments 按创建时间倒序返回 ownerID 名下的全部分块。
func (s *Store) GetAllDocuments(ctx context.Context, ownerID string) ([]model.DocumentChunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	chunks, err := s.backend.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageReadFailed, err, "读取向量库失败")
	}
	return chunks, nil
}

// Clear 删除 ownerID 名下的全部分块，没有数据时同样视为成功。
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	n, err := s.backend.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return apperr.Wrap(apperr.StorageWriteFailed, err, "清空向量库失败")
	}
	log.Infof("[VectorStore] 已删除 %d 个分块, owner: %s", n, ownerID)
	return nil
}

// GetCount 返回 ownerID 名下的分块数量。
func (s *Store) GetCount(ctx context.Context, ownerID string) (int64, error) {
	if err := requireOwner(ownerID); err != nil {
		return 0, err
	}
	n, err := s.backend.CountByOwner(ctx, ownerID)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageReadFailed, err, "读取向量库失败")
	}
	return n, nil
}
