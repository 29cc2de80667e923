package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docchat-go/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVector_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []float32
	}{
		{"openai data", `{"object":"list","data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`, []float32{0.1, 0.2, 0.3}},
		{"data with nested values", `{"data":[{"embedding":{"values":[1,2]}}]}`, []float32{1, 2}},
		{"flat embedding", `{"embedding":[0.5,-0.5]}`, []float32{0.5, -0.5}},
		{"nested embedding values", `{"embedding":{"values":[0.25,0.75]}}`, []float32{0.25, 0.75}},
		{"embeddings list", `{"embeddings":[{"values":[3,4]}]}`, []float32{3, 4}},
		{"top-level values", `{"values":[9,8,7]}`, []float32{9, 8, 7}},
		{"bare array", `[1.5,2.5]`, []float32{1.5, 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVector([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeVector_Unusable(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"data":[]}`,
		`{"data":[{"embedding":[]}]}`,
		`{"embedding":"abc"}`,
		`{"embedding":{"vals":[1]}}`,
		`[]`,
		`not json`,
	}
	for _, b := range bodies {
		_, err := DecodeVector([]byte(b))
		assert.Error(t, err, b)
		if err != nil {
			assert.Contains(t, err.Error(), "no usable vector field")
		}
	}
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-model", req.Model)
		assert.Equal(t, []string{"hello"}, req.Input)
		assert.Equal(t, 3, req.Dimensions)

		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0,0]}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/v1/", "key", "embed-model", 3, time.Second)
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
}

func TestHTTPProvider_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", "m", 0, time.Second)
	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

// fakeProvider 根据文本生成确定的向量，并记录调用次数。
type fakeProvider struct {
	calls  int32
	failOn string
	dims   int
	delay  func(text string) time.Duration
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if text == f.failOn {
		return nil, errors.New("provider unavailable")
	}
	dims := f.dims
	if dims == 0 {
		dims = 2
	}
	vec := make([]float32, dims)
	vec[0] = float32(len(text))
	return vec, nil
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	texts := []string{"a", "bbbb", "cc", "ddddddd", "eee"}
	p := &fakeProvider{
		// 越靠前的文本越晚返回，验证结果按下标而不是到达顺序归位
		delay: func(text string) time.Duration {
			return time.Duration(10-len(text)) * time.Millisecond
		},
	}
	c := New(p, Options{MaxConcurrency: 5})

	vecs, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "position %d", i)
	}
	assert.EqualValues(t, len(texts), atomic.LoadInt32(&p.calls))
}

func TestEmbedBatch_FailureNamesPosition(t *testing.T) {
	texts := []string{"ok-0", "ok-1", "broken", "ok-3"}
	c := New(&fakeProvider{failOn: "broken"}, Options{MaxConcurrency: 1})

	vecs, err := c.EmbedBatch(context.Background(), texts)
	require.Error(t, err)
	assert.Nil(t, vecs)
	assert.Equal(t, apperr.EmbeddingFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "text 2 of 4")
	assert.Contains(t, err.Error(), "provider unavailable")
}

func TestEmbedBatch_Empty(t *testing.T) {
	c := New(&fakeProvider{}, Options{})
	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	c := New(&fakeProvider{dims: 3}, Options{Dimensions: 4})
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, apperr.EmbeddingFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "expected 4")
}

func TestEmbed_RateLimited(t *testing.T) {
	c := New(&fakeProvider{}, Options{RequestsPerSec: 1000})
	vecs, err := c.EmbedBatch(context.Background(), strings.Fields("a b c d e f"))
	require.NoError(t, err)
	assert.Len(t, vecs, 6)
}

func TestEmbedBatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &fakeProvider{delay: func(string) time.Duration { return time.Second }}
	c := New(p, Options{})

	_, err := c.EmbedBatch(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func ExampleDecodeVector() {
	vec, _ := DecodeVector([]byte(`{"embedding":{"values":[0.5,1]}}`))
	fmt.Println(vec)
	// Output: [0.5 1]
}

type closingProvider struct {
	fakeProvider
	closed int
}

func (p *closingProvider) Close() error {
	p.closed++
	return errors.New("connection already closed")
}

func TestClient_CloseForwardsToProvider(t *testing.T) {
	p := &closingProvider{}
	c := New(p, Options{})

	closer, ok := c.(io.Closer)
	require.True(t, ok)
	assert.EqualError(t, closer.Close(), "connection already closed")
	assert.Equal(t, 1, p.closed)

	assert.NoError(t, New(&fakeProvider{}, Options{}).(io.Closer).Close())
}
