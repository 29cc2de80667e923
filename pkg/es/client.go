// Package es 提供了与 Elasticsearch 交互的客户端功能。
// ChunkIndex 把分块保存在带 dense_vector 字段的索引中，实现 vectorstore.Backend。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pgvector/pgvector-go"
)

// listPageSize 是列表查询每页的大小，远小于默认的 index.max_result_window。
const listPageSize = 1000

// ChunkIndex 封装了单个分块索引上的读写操作。
type ChunkIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// NewChunkIndex 创建 ChunkIndex，并在索引不存在时按向量维度创建它。
func NewChunkIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dimensions int) (*ChunkIndex, error) {
	idx := &ChunkIndex{client: client, indexName: indexName}
	if err := idx.createIndexIfNotExists(ctx, dimensions); err != nil {
		return nil, err
	}
	return idx, nil
}

// indexMapping 返回分块索引的 mapping，向量字段使用 cosine 相似度。
func indexMapping(dimensions int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"text": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"file_name": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"created_at": { "type": "date" },
				"owner_id": { "type": "keyword" }
			}
		}
	}`, dimensions)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *ChunkIndex) createIndexIfNotExists(ctx context.Context, dimensions int) error {
	res, err := c.client.Indices.Exists([]string{c.indexName}, c.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.client.Indices.Create(
		c.indexName,
		c.client.Indices.Create.WithBody(strings.NewReader(indexMapping(dimensions))),
		c.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功, 维度: %d", c.indexName, dimensions)
	return nil
}

func toEsChunk(chunk *model.DocumentChunk) model.EsChunk {
	return model.EsChunk{
		ID:         chunk.ID,
		Text:       chunk.Text,
		Vector:     chunk.Vector(),
		FileName:   chunk.FileName,
		ChunkIndex: chunk.ChunkIndex,
		CreatedAt:  chunk.CreatedAt,
		OwnerID:    chunk.OwnerID,
	}
}

func fromEsChunk(doc model.EsChunk) model.DocumentChunk {
	return model.DocumentChunk{
		ID:         doc.ID,
		Text:       doc.Text,
		Embedding:  pgvector.NewVector(doc.Vector),
		FileName:   doc.FileName,
		ChunkIndex: doc.ChunkIndex,
		CreatedAt:  doc.CreatedAt,
		OwnerID:    doc.OwnerID,
	}
}

// Insert 将单个分块索引到 Elasticsearch。
func (c *ChunkIndex) Insert(ctx context.Context, chunk *model.DocumentChunk) error {
	docBytes, err := json.Marshal(toEsChunk(chunk))
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: chunk.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引分块到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index chunk")
	}
	return nil
}

func ownerFilter(ownerID string) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{"owner_id": ownerID},
	}
}

// listQuery 构造按时间倒序读取某个用户分块的一页查询体。
// id 作为第二排序键，保证 search_after 翻页时顺序稳定。
func listQuery(ownerID string, size int, after []interface{}) map[string]interface{} {
	q := map[string]interface{}{
		"size":  size,
		"query": ownerFilter(ownerID),
		"sort": []interface{}{
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
		},
	}
	if len(after) > 0 {
		q["search_after"] = after
	}
	return q
}

// knnQuery 构造带用户过滤的近似最近邻查询体。
func knnQuery(vector []float32, count int, ownerID string) map[string]interface{} {
	candidates := count * 10
	if candidates < 100 {
		candidates = 100
	}
	return map[string]interface{}{
		"size": count,
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              count,
			"num_candidates": candidates,
			"filter":         ownerFilter(ownerID),
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64       `json:"_score"`
			Source model.EsChunk `json:"_source"`
			Sort   []interface{} `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *ChunkIndex) search(ctx context.Context, body map[string]interface{}) (*searchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.indexName),
		c.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}
	return decodeSearchResponse(res.Body)
}

func decodeSearchResponse(r io.Reader) (*searchResponse, error) {
	var sr searchResponse
	if err := json.NewDecoder(r).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &sr, nil
}

// ListByOwner 按 created_at 倒序读取分块，limit <= 0 时用 search_after 翻页读取全部。
func (c *ChunkIndex) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.DocumentChunk, error) {
	var (
		chunks []model.DocumentChunk
		after  []interface{}
	)
	for {
		size := listPageSize
		if limit > 0 && limit-len(chunks) < size {
			size = limit - len(chunks)
		}
		sr, err := c.search(ctx, listQuery(ownerID, size, after))
		if err != nil {
			return nil, err
		}
		hits := sr.Hits.Hits
		for _, hit := range hits {
			chunks = append(chunks, fromEsChunk(hit.Source))
		}
		if len(hits) < size || (limit > 0 && len(chunks) >= limit) {
			break
		}
		after = hits[len(hits)-1].Sort
		if len(after) == 0 {
			log.Warnf("[ES] 索引 '%s' 的列表结果缺少排序值，停止翻页，已读取 %d 条", c.indexName, len(chunks))
			break
		}
	}
	if chunks == nil {
		chunks = []model.DocumentChunk{}
	}
	return chunks, nil
}

// CountByOwner 返回用户的分块数量。
func (c *ChunkIndex) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	body, err := json.Marshal(map[string]interface{}{"query": ownerFilter(ownerID)})
	if err != nil {
		return 0, err
	}
	res, err := c.client.Count(
		c.client.Count.WithContext(ctx),
		c.client.Count.WithIndex(c.indexName),
		c.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count error: %s", res.String())
	}
	var cr struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return cr.Count, nil
}

// DeleteByOwner 删除用户的全部分块。
func (c *ChunkIndex) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	body, err := json.Marshal(map[string]interface{}{"query": ownerFilter(ownerID)})
	if err != nil {
		return 0, err
	}
	res, err := c.client.DeleteByQuery(
		[]string{c.indexName},
		bytes.NewReader(body),
		c.client.DeleteByQuery.WithContext(ctx),
		c.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch delete_by_query error: %s", res.String())
	}
	var dr struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&dr); err != nil {
		return 0, fmt.Errorf("failed to decode delete response: %w", err)
	}
	return dr.Deleted, nil
}

// scoreToCosine 把 Elasticsearch cosine 相似度的 _score，即 (1+cos)/2，还原为余弦值。
func scoreToCosine(score float64) float64 {
	return 2*score - 1
}

// MatchDocuments 使用 kNN 检索，返回余弦相似度大于 threshold 的结果。
func (c *ChunkIndex) MatchDocuments(ctx context.Context, query []float32, threshold float64, count int, ownerID string) ([]model.ScoredChunk, error) {
	sr, err := c.search(ctx, knnQuery(query, count, ownerID))
	if err != nil {
		return nil, err
	}
	return scoredHits(sr, threshold), nil
}

func scoredHits(sr *searchResponse, threshold float64) []model.ScoredChunk {
	results := make([]model.ScoredChunk, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		sim := scoreToCosine(hit.Score)
		if sim <= threshold {
			continue
		}
		results = append(results, model.ScoredChunk{
			DocumentChunk: fromEsChunk(hit.Source),
			Similarity:    sim,
		})
	}
	return results
}
