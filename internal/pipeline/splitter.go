package pipeline

import (
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// span 是切分结果在原文 rune 序列中的半开区间 [start, end)。
type span struct {
	start, end int
}

// SplitIntoChunks 把文本切成带重叠的分块，长度以 rune 计。
// 非最后一段时，如果切片中最后一个 '.' 或 '\n' 位于切片后半部分，就在该处截断，
// 下一块从断点之后开始；否则保留整段并回退 overlap 个字符作为下一块的起点。
// 每块都会去掉首尾空白，空块直接丢弃，因此纯空白文本返回空切片。
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	spans := splitSpans(runes, chunkSize, overlap)

	chunks := make([]string, 0, len(spans))
	for _, s := range spans {
		chunk := strings.TrimSpace(string(runes[s.start:s.end]))
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// normalizeChunkParams 保证循环一定向前推进。
func normalizeChunkParams(chunkSize, overlap int) (int, int) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return chunkSize, overlap
}

func splitSpans(runes []rune, chunkSize, overlap int) []span {
	chunkSize, overlap = normalizeChunkParams(chunkSize, overlap)

	var spans []span
	n := len(runes)
	start := 0
	for start < n {
		end := start + chunkSize
		if end > n {
			end = n
		}

		if end == n {
			spans = append(spans, span{start, end})
			start = end
			continue
		}

		breakPoint := lastBreak(runes[start:end])
		if float64(breakPoint) > float64(chunkSize)*0.5 {
			spans = append(spans, span{start, start + breakPoint + 1})
			start += breakPoint + 1
			continue
		}

		spans = append(spans, span{start, end})
		start = end - overlap
	}
	return spans
}

// lastBreak 返回切片中最后一个句号或换行的位置，都不存在时返回 -1。
func lastBreak(slice []rune) int {
	for i := len(slice) - 1; i >= 0; i-- {
		if slice[i] == '.' || slice[i] == '\n' {
			return i
		}
	}
	return -1
}
