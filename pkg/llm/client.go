// Package llm provides completion clients for Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("completion provider temporarily unavailable")

// GenerationParams controls a single completion.
type GenerationParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string, gen GenerationParams) (string, error)
}

// NewClient creates the completion client selected by cfg.Provider, guarded by a circuit breaker.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var provider Completer
	switch cfg.Provider {
	case "", "http", "openai", "deepseek":
		provider = NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		provider = g
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return WithBreaker(provider, cfg.Provider), nil
}

type breakerCompleter struct {
	next    Completer
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps next so that a run of failures stops calls for a minute.
func WithBreaker(next Completer, name string) Completer {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[LLM] circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &breakerCompleter{next: next, breaker: breaker}
}

func (b *breakerCompleter) Complete(ctx context.Context, prompt string, gen GenerationParams) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, prompt, gen)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}

// Close releases the wrapped provider when it holds a connection.
func (b *breakerCompleter) Close() error {
	if c, ok := b.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
