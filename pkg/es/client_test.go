package es

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"docchat-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexMapping(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(indexMapping(768)), &m))

	props := m["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	vector := props["vector"].(map[string]interface{})
	assert.Equal(t, "dense_vector", vector["type"])
	assert.EqualValues(t, 768, vector["dims"])
	assert.Equal(t, "cosine", vector["similarity"])
	assert.Equal(t, "keyword", props["owner_id"].(map[string]interface{})["type"])
}

func TestKnnQuery(t *testing.T) {
	q := knnQuery([]float32{0.1, 0.2}, 5, "alice")
	knn := q["knn"].(map[string]interface{})
	assert.Equal(t, 5, knn["k"])
	assert.Equal(t, 100, knn["num_candidates"])
	assert.Equal(t, ownerFilter("alice"), knn["filter"])

	q = knnQuery([]float32{0.1}, 50, "alice")
	assert.Equal(t, 500, q["knn"].(map[string]interface{})["num_candidates"])
}

func TestListQuery_SearchAfter(t *testing.T) {
	first := listQuery("alice", 500, nil)
	assert.Equal(t, 500, first["size"])
	assert.NotContains(t, first, "search_after")
	assert.Len(t, first["sort"], 2, "id breaks created_at ties")

	next := listQuery("alice", 500, []interface{}{1714564800000.0, "c-00499"})
	assert.Equal(t, []interface{}{1714564800000.0, "c-00499"}, next["search_after"])
}

// fakeChunkIndex 模拟一个按 created_at 倒序、id 升序排列的索引，支持 search_after 翻页。
type fakeChunkIndex struct {
	total int

	mu       sync.Mutex
	requests []map[string]interface{}
}

func (f *fakeChunkIndex) seen() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.requests...)
}

func (f *fakeChunkIndex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	start := 0
	if after, ok := body["search_after"].([]interface{}); ok {
		var n int
		fmt.Sscanf(after[1].(string), "c-%05d", &n)
		start = n + 1
	}
	end := start + int(body["size"].(float64))
	if end > f.total {
		end = f.total
	}

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	hits := make([]map[string]interface{}, 0, end-start)
	for i := start; i < end; i++ {
		created := base.Add(-time.Duration(i) * time.Second)
		id := fmt.Sprintf("c-%05d", i)
		hits = append(hits, map[string]interface{}{
			"_score": nil,
			"_source": model.EsChunk{
				ID: id, Text: "chunk", Vector: []float32{1, 0},
				FileName: "big.txt", ChunkIndex: i, CreatedAt: created, OwnerID: "alice",
			},
			"sort": []interface{}{created.UnixMilli(), id},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hits": map[string]interface{}{"hits": hits},
	})
}

func newFakeChunkIndex(t *testing.T, total int) (*ChunkIndex, *fakeChunkIndex) {
	t.Helper()
	fake := &fakeChunkIndex{total: total}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &ChunkIndex{client: client, indexName: "chunks"}, fake
}

func TestListByOwner_PagesPastResultWindow(t *testing.T) {
	idx, fake := newFakeChunkIndex(t, 2*listPageSize+300)

	chunks, err := idx.ListByOwner(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2*listPageSize+300)
	assert.Equal(t, "c-00000", chunks[0].ID)
	assert.Equal(t, fmt.Sprintf("c-%05d", 2*listPageSize+299), chunks[len(chunks)-1].ID)
	assert.Equal(t, []float32{1, 0}, chunks[0].Vector())

	requests := fake.seen()
	require.Len(t, requests, 3)
	assert.NotContains(t, requests[0], "search_after")
	assert.Equal(t, fmt.Sprintf("c-%05d", listPageSize-1), requests[1]["search_after"].([]interface{})[1])
}

func TestListByOwner_StopsAtLimit(t *testing.T) {
	idx, fake := newFakeChunkIndex(t, 5000)

	chunks, err := idx.ListByOwner(context.Background(), "alice", listPageSize+200)
	require.NoError(t, err)
	assert.Len(t, chunks, listPageSize+200)

	requests := fake.seen()
	require.Len(t, requests, 2)
	assert.EqualValues(t, listPageSize, requests[0]["size"])
	assert.EqualValues(t, 200, requests[1]["size"])
}

func TestListByOwner_EmptyIndex(t *testing.T) {
	idx, fake := newFakeChunkIndex(t, 0)

	chunks, err := idx.ListByOwner(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)
	assert.Len(t, fake.seen(), 1)
}

func TestScoredHits(t *testing.T) {
	body := `{"hits":{"hits":[
		{"_score":0.95,"_source":{"id":"a","text":"alpha","file_name":"a.txt","chunk_index":0,"created_at":"2024-05-01T12:00:00Z","owner_id":"alice"}},
		{"_score":0.75,"_source":{"id":"b","text":"beta","file_name":"a.txt","chunk_index":1,"created_at":"2024-05-01T12:00:01Z","owner_id":"alice"}},
		{"_score":0.70,"_source":{"id":"c","text":"gamma","file_name":"b.txt","chunk_index":0,"created_at":"2024-05-01T12:00:02Z","owner_id":"alice"}}
	]}}`
	sr, err := decodeSearchResponse(strings.NewReader(body))
	require.NoError(t, err)

	results := scoredHits(sr, 0.5)
	require.Len(t, results, 1, "score 0.75 maps to cosine 0.5, which is not above the threshold")
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-9)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), results[0].CreatedAt.UTC())
}

func TestEsChunkRoundTrip(t *testing.T) {
	chunk := &model.DocumentChunk{
		ID:         "id-1",
		Text:       "hello",
		Embedding:  pgvector.NewVector([]float32{1, 2}),
		FileName:   "a.txt",
		ChunkIndex: 3,
		CreatedAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		OwnerID:    "alice",
	}
	got := fromEsChunk(toEsChunk(chunk))
	assert.Equal(t, chunk.Vector(), got.Vector())
	assert.Equal(t, chunk.ID, got.ID)
	assert.Equal(t, chunk.OwnerID, got.OwnerID)
	assert.Equal(t, chunk.ChunkIndex, got.ChunkIndex)
}
