package vectorstore

import (
	"context"
	"sort"
	"sync"

	"docchat-go/internal/model"
)

// MemoryBackend 把分块保存在进程内存中，用于本地开发和测试。
// 它没有服务端检索能力，Search 总是走客户端回退路径。
type MemoryBackend struct {
	mu     sync.RWMutex
	chunks []model.DocumentChunk
}

// NewMemoryBackend 创建一个空的内存后端。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Insert(_ context.Context, chunk *model.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, *chunk)
	return nil
}

func (m *MemoryBackend) ListByOwner(_ context.Context, ownerID string, limit int) ([]model.DocumentChunk, error) {
	m.mu.RLock()
	owned := make([]model.DocumentChunk, 0)
	for _, c := range m.chunks {
		if c.OwnerID == ownerID {
			owned = append(owned, c)
		}
	}
	m.mu.RUnlock()

	// 插入顺序的逆序作为时间相同时的次序
	for i, j := 0, len(owned)-1; i < j; i, j = i+1, j-1 {
		owned[i], owned[j] = owned[j], owned[i]
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if limit > 0 && len(owned) > limit {
		owned = owned[:limit]
	}
	return owned, nil
}

func (m *MemoryBackend) CountByOwner(_ context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, c := range m.chunks {
		if c.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	var n int64
	for _, c := range m.chunks {
		if c.OwnerID == ownerID {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return n, nil
}

func (m *MemoryBackend) MatchDocuments(context.Context, []float32, float64, int, string) ([]model.ScoredChunk, error) {
	return nil, ErrMatchUnavailable
}
