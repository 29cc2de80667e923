package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"docchat-go/internal/apperr"
	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/events"
	"docchat-go/pkg/log"
)

// ChunkStore 是文档管理需要的向量库能力。
type ChunkStore interface {
	GetAllDocuments(ctx context.Context, ownerID string) ([]model.DocumentChunk, error)
	Clear(ctx context.Context, ownerID string) error
}

// ObjectRemover 删除归档在对象存储中的原始文件。
type ObjectRemover interface {
	Remove(ctx context.Context, keys ...string) error
}

// DocumentSummary 是按文件名聚合后的文档信息。
type DocumentSummary struct {
	FileName             string    `json:"fileName"`
	ChunkCount           int       `json:"chunkCount"`
	FirstUploadTimestamp time.Time `json:"firstUploadTimestamp"`
}

// ClearResult 是清空操作的结果。
type ClearResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	ListDocuments(ctx context.Context, ownerID string) ([]DocumentSummary, error)
	ClearDocuments(ctx context.Context, ownerID string) (*ClearResult, error)
}

type documentService struct {
	store      ChunkStore
	uploadRepo repository.UploadRepository
	objects    ObjectRemover
	publisher  events.Publisher
}

// NewDocumentService 创建一个新的 DocumentService 实例。uploadRepo、objects 和 publisher 均可为 nil。
func NewDocumentService(store ChunkStore, uploadRepo repository.UploadRepository, objects ObjectRemover, publisher events.Publisher) DocumentService {
	return &documentService{
		store:      store,
		uploadRepo: uploadRepo,
		objects:    objects,
		publisher:  publisher,
	}
}

// ListDocuments 返回用户的文档列表，每个不同的文件名一项。
func (s *documentService) ListDocuments(ctx context.Context, ownerID string) ([]DocumentSummary, error) {
	chunks, err := s.store.GetAllDocuments(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return SummarizeChunks(chunks), nil
}

// SummarizeChunks 按文件名聚合分块，FirstUploadTimestamp 取该文件最早的分块时间。
// 结果按最近上传的文件在前排序。
func SummarizeChunks(chunks []model.DocumentChunk) []DocumentSummary {
	byName := make(map[string]*DocumentSummary)
	for _, c := range chunks {
		sum, ok := byName[c.FileName]
		if !ok {
			byName[c.FileName] = &DocumentSummary{FileName: c.FileName, ChunkCount: 1, FirstUploadTimestamp: c.CreatedAt}
			continue
		}
		sum.ChunkCount++
		if c.CreatedAt.Before(sum.FirstUploadTimestamp) {
			sum.FirstUploadTimestamp = c.CreatedAt
		}
	}

	out := make([]DocumentSummary, 0, len(byName))
	for _, sum := range byName {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstUploadTimestamp.Equal(out[j].FirstUploadTimestamp) {
			return out[i].FirstUploadTimestamp.After(out[j].FirstUploadTimestamp)
		}
		return out[i].FileName < out[j].FileName
	})
	return out
}

// ClearDocuments 删除用户的全部分块。归档文件和上传记录的清理失败只记录日志。
func (s *documentService) ClearDocuments(ctx context.Context, ownerID string) (*ClearResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.New(apperr.Unauthorized, "缺少用户身份")
	}
	if err := s.store.Clear(ctx, ownerID); err != nil {
		return &ClearResult{Success: false, Message: apperr.Message(err)}, err
	}

	s.cleanupUploads(ctx, ownerID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.Cleared(ownerID)); err != nil {
			log.Warnf("[DocumentService] 发布清空事件失败, owner: %s, error: %v", ownerID, err)
		}
	}

	log.Infof("[DocumentService] 已清空用户 %s 的全部文档", ownerID)
	return &ClearResult{Success: true, Message: "All documents cleared"}, nil
}

func (s *documentService) cleanupUploads(ctx context.Context, ownerID string) {
	if s.uploadRepo == nil {
		return
	}
	records, err := s.uploadRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		log.Warnf("[DocumentService] 读取上传记录失败, owner: %s, error: %v", ownerID, err)
		return
	}
	if s.objects != nil {
		keys := make([]string, 0, len(records))
		for _, r := range records {
			keys = append(keys, r.ObjectKey)
		}
		if err := s.objects.Remove(ctx, keys...); err != nil {
			log.Warnf("[DocumentService] 删除归档文件失败, owner: %s, error: %v", ownerID, err)
		}
	}
	if _, err := s.uploadRepo.DeleteByOwner(ctx, ownerID); err != nil {
		log.Warnf("[DocumentService] 删除上传记录失败, owner: %s, error: %v", ownerID, err)
	}
}
