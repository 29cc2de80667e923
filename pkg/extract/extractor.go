// Package extract converts uploaded file bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"docchat-go/internal/apperr"
	"docchat-go/pkg/log"
)

// Document is the transient result of extraction. It is never persisted.
type Document struct {
	Text     string
	FileName string
	FileType string
}

// TikaClient is the subset of the Tika client used as a last-resort reader.
type TikaClient interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
	ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error)
}

// Extractor dispatches on the file extension.
type Extractor struct {
	tika          TikaClient
	pdfStrategies []Strategy
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithPDFStrategies replaces the default PDF strategy chain.
func WithPDFStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.pdfStrategies = strategies
	}
}

// New builds an Extractor. tika may be nil, in which case the Tika-backed
// fallbacks report themselves as unavailable. pdfTimeout bounds the page/run
// strategy; zero means 30 seconds.
func New(tika TikaClient, pdfTimeout time.Duration, opts ...Option) *Extractor {
	if pdfTimeout <= 0 {
		pdfTimeout = 30 * time.Second
	}
	e := &Extractor{tika: tika}
	e.pdfStrategies = []Strategy{
		{Name: "text-layer", Extract: textLayerStrategy},
		{Name: "page-runs", Extract: pageRunStrategy(pdfTimeout)},
		{Name: "rendered-pages", Extract: e.renderedPageStrategy},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportedTypes lists the accepted extensions without the leading dot.
var SupportedTypes = []string{"pdf", "docx", "doc", "txt"}

// FileType returns the lower-cased extension of fileName without the dot.
func FileType(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}

// IsSupported reports whether fileName has an accepted extension.
func IsSupported(fileName string) bool {
	ft := FileType(fileName)
	for _, t := range SupportedTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// Extract returns the text of data according to the extension of fileName.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName string) (*Document, error) {
	fileType := FileType(fileName)

	var (
		text string
		err  error
	)
	switch fileType {
	case "txt":
		text, err = extractPlainText(data)
	case "docx", "doc":
		text, err = e.extractWord(ctx, data, fileName)
	case "pdf":
		text, err = runStrategies(ctx, data, e.pdfStrategies)
	default:
		return nil, apperr.Newf(apperr.UnsupportedFormat, "unsupported file type: %q", fileType)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("[Extractor] extracted %d characters from %s (%s)", utf8.RuneCountInString(text), fileName, fileType)
	return &Document{Text: text, FileName: fileName, FileType: fileType}, nil
}

func extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", apperr.New(apperr.ExtractionFailed, "text file is not valid UTF-8")
	}
	return string(data), nil
}

// extractWord reads OOXML directly and falls back to Tika for legacy
// binary .doc files or archives the zip reader rejects.
func (e *Extractor) extractWord(ctx context.Context, data []byte, fileName string) (string, error) {
	text, err := readDocx(data)
	if err == nil {
		return text, nil
	}
	if e.tika == nil {
		return "", apperr.Wrap(apperr.ExtractionFailed, err, "failed to read word document")
	}

	log.Warnf("[Extractor] docx reader failed for %s, falling back to tika: %v", fileName, err)
	text, tikaErr := e.tika.ExtractText(ctx, bytes.NewReader(data), fileName)
	if tikaErr != nil {
		return "", apperr.Wrap(apperr.ExtractionFailed,
			fmt.Errorf("docx reader: %v; tika: %w", err, tikaErr), "failed to read word document")
	}
	return strings.TrimSpace(text), nil
}
