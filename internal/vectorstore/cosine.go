package vectorstore

import (
	"math"
	"sort"

	"docchat-go/internal/model"
)

// CosineSimilarity 返回 dot(a,b)/(|a||b|)。
// 长度不一致、为空或任一向量范数为 0 时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank 过滤掉相似度不大于阈值的结果，按相似度降序排序并截断到 topK。
func rank(results []model.ScoredChunk, threshold float64, topK int) []model.ScoredChunk {
	kept := make([]model.ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Similarity > threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
