package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint and decodes
// whichever known response shape comes back.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// NewHTTPProvider creates a provider for an OpenAI-compatible endpoint.
func NewHTTPProvider(baseURL, apiKey, model string, dimensions int, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// Embed calls the API to get the vector for a given text.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBytes, err := json.Marshal(embeddingRequest{
		Model:      p.model,
		Input:      []string{text},
		Dimensions: p.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api returned %s: %s", resp.Status, truncate(string(body), 300))
	}
	return DecodeVector(body)
}

// shape is one known response layout.
type shape struct {
	name   string
	decode func([]byte) ([]float32, bool)
}

var shapes = []shape{
	{"data[0].embedding", func(b []byte) ([]float32, bool) {
		var r struct {
			Data []struct {
				Embedding json.RawMessage `json:"embedding"`
			} `json:"data"`
		}
		if json.Unmarshal(b, &r) != nil || len(r.Data) == 0 {
			return nil, false
		}
		return vectorField(r.Data[0].Embedding)
	}},
	{"embedding", func(b []byte) ([]float32, bool) {
		var r struct {
			Embedding json.RawMessage `json:"embedding"`
		}
		if json.Unmarshal(b, &r) != nil {
			return nil, false
		}
		return vectorField(r.Embedding)
	}},
	{"embeddings[0]", func(b []byte) ([]float32, bool) {
		var r struct {
			Embeddings []json.RawMessage `json:"embeddings"`
		}
		if json.Unmarshal(b, &r) != nil || len(r.Embeddings) == 0 {
			return nil, false
		}
		return vectorField(r.Embeddings[0])
	}},
	{"values", func(b []byte) ([]float32, bool) {
		return nestedValues(b)
	}},
	{"array", func(b []byte) ([]float32, bool) {
		return flatArray(b)
	}},
}

// DecodeVector tries each known response shape in order and returns the
// first non-empty vector.
func DecodeVector(body []byte) ([]float32, error) {
	for _, s := range shapes {
		if vec, ok := s.decode(body); ok {
			return vec, nil
		}
	}
	return nil, fmt.Errorf("embedding response has no usable vector field: %s", truncate(string(body), 200))
}

// vectorField accepts either a flat array or an object with a values array.
func vectorField(raw json.RawMessage) ([]float32, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if vec, ok := flatArray(raw); ok {
		return vec, true
	}
	return nestedValues(raw)
}

func flatArray(b []byte) ([]float32, bool) {
	var vec []float32
	if json.Unmarshal(b, &vec) != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func nestedValues(b []byte) ([]float32, bool) {
	var obj struct {
		Values []float32 `json:"values"`
	}
	if json.Unmarshal(b, &obj) != nil || len(obj.Values) == 0 {
		return nil, false
	}
	return obj.Values, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
