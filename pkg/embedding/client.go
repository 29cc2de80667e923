// Package embedding provides clients for hosted embedding models.
package embedding

import (
	"context"
	"fmt"
	"io"
	"time"

	"docchat-go/internal/apperr"
	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Provider turns one text into one vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client defines the interface for an embedding client.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tunes the batch behaviour of a Client.
type Options struct {
	// Dimensions, when positive, is enforced on every returned vector.
	Dimensions     int
	MaxConcurrency int
	// RequestsPerSec paces provider calls; zero disables pacing.
	RequestsPerSec float64
}

type client struct {
	provider       Provider
	dimensions     int
	maxConcurrency int
	limiter        *rate.Limiter
}

// New wraps a provider with validation, pacing and concurrent batching.
func New(p Provider, opts Options) Client {
	c := &client{
		provider:       p,
		dimensions:     opts.Dimensions,
		maxConcurrency: opts.MaxConcurrency,
	}
	if c.maxConcurrency <= 0 {
		c.maxConcurrency = 8
	}
	if opts.RequestsPerSec > 0 {
		burst := int(opts.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}
	return c
}

// NewClient creates an embedding client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "", "http":
		p = NewHTTPProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions, timeout)
	case "openai":
		p = NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("[EmbeddingClient] provider=%s model=%s dimensions=%d", cfg.Provider, cfg.Model, cfg.Dimensions)
	return New(p, Options{
		Dimensions:     cfg.Dimensions,
		MaxConcurrency: cfg.MaxConcurrency,
		RequestsPerSec: cfg.RequestsPerSec,
	}), nil
}

// Close releases the provider when it holds a connection, as the Gemini provider does.
func (c *client) Close() error {
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *client) embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("provider returned an empty vector")
	}
	if c.dimensions > 0 && len(vec) != c.dimensions {
		return nil, fmt.Errorf("provider returned %d dimensions, expected %d", len(vec), c.dimensions)
	}
	return vec, nil
}

// Embed returns the vector for a single text.
func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embed(ctx, text)
	if err != nil {
		log.Errorf("[EmbeddingClient] embed failed: %v", err)
		return nil, apperr.Wrap(apperr.EmbeddingFailed, err, "embedding provider failed")
	}
	return vec, nil
}

// EmbedBatch issues one call per text concurrently. The first failure
// cancels the rest and is reported with the position of the failing text.
func (c *client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := c.embed(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d of %d: %w", i, len(texts), err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("[EmbeddingClient] batch of %d failed: %v", len(texts), err)
		return nil, apperr.Wrap(apperr.EmbeddingFailed, err, "embedding provider failed")
	}

	log.Infof("[EmbeddingClient] embedded %d texts", len(texts))
	return out, nil
}
