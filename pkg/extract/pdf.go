package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"docchat-go/internal/apperr"
	"docchat-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

// Strategy is one way of getting text out of a PDF. It must return non-empty
// text or an error.
type Strategy struct {
	Name    string
	Extract func(ctx context.Context, data []byte) (string, error)
}

var errNoText = errors.New("no text found")

// runStrategies tries each strategy in order and returns the first non-empty
// result. Earlier failures are logged and dropped.
func runStrategies(ctx context.Context, data []byte, strategies []Strategy) (string, error) {
	var (
		lastErr  error
		lastName string
	)
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", apperr.Wrap(apperr.ExtractionFailed, err, "PDF extraction cancelled")
		}

		text, err := safeExtract(ctx, s, data)
		if err == nil {
			text = strings.TrimSpace(text)
			if text != "" {
				log.Infof("[Extractor] PDF strategy %s succeeded", s.Name)
				return text, nil
			}
			err = errNoText
		}

		log.Warnf("[Extractor] PDF strategy %s failed: %v", s.Name, err)
		lastErr, lastName = err, s.Name
	}

	if lastErr == nil {
		lastErr = errors.New("no extraction strategies configured")
	}
	return "", apperr.Wrap(apperr.ExtractionFailed,
		fmt.Errorf("all %d PDF strategies failed, last (%s): %w", len(strategies), lastName, lastErr),
		"could not extract text from PDF; the document may be image-only, encrypted, or corrupted")
}

// safeExtract turns a parser panic into an error. The pdf package panics on
// some malformed inputs.
func safeExtract(ctx context.Context, s Strategy, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return s.Extract(ctx, data)
}

func openPDF(data []byte) (*pdf.Reader, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

// textLayerStrategy streams the whole text layer in one pass.
func textLayerStrategy(_ context.Context, data []byte) (string, error) {
	r, err := openPDF(data)
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", errNoText
	}
	return text, nil
}

// pageRunStrategy walks page content text runs. The deadline is checked
// between pages and between runs, so a timed-out parse stops at the next
// boundary instead of running on in the background.
func pageRunStrategy(timeout time.Duration) func(context.Context, []byte) (string, error) {
	return func(ctx context.Context, data []byte) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r, err := openPDF(data)
		if err != nil {
			return "", err
		}

		pages := make([]string, 0, r.NumPage())
		for i := 1; i <= r.NumPage(); i++ {
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("page parse stopped at page %d after %s: %w", i, timeout, err)
			}
			page := r.Page(i)
			if page.V.IsNull() {
				continue
			}

			var b strings.Builder
			for _, t := range page.Content().Text {
				if err := ctx.Err(); err != nil {
					return "", fmt.Errorf("page parse stopped at page %d after %s: %w", i, timeout, err)
				}
				b.WriteString(decodeRun(t.S))
			}
			pages = append(pages, b.String())
		}

		text := strings.Join(pages, "\n")
		if strings.TrimSpace(text) == "" {
			return "", errNoText
		}
		return text, nil
	}
}

// decodeRun percent-decodes a text run, keeping the raw run when it is not
// valid percent-encoding.
func decodeRun(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// renderedPageStrategy asks Tika for page-structured XHTML.
func (e *Extractor) renderedPageStrategy(ctx context.Context, data []byte) (string, error) {
	if e.tika == nil {
		return "", errors.New("tika server not configured")
	}
	pages, err := e.tika.ExtractPages(ctx, data, "document.pdf")
	if err != nil {
		return "", err
	}
	text := strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return "", errNoText
	}
	return text, nil
}
