// Package pipeline 定义了文件入库的核心流程：提取 -> 切块 -> 向量化 -> 写入向量库。
package pipeline

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"docchat-go/internal/apperr"
	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/events"
	"docchat-go/pkg/extract"
	"docchat-go/pkg/log"
	"docchat-go/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TextExtractor 把文件内容转换为纯文本。
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (*extract.Document, error)
}

// BatchEmbedder 为一批文本生成向量，结果与输入按下标一一对应。
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter 把分块写入向量库并返回生成的 ID。
type ChunkWriter interface {
	AddDocuments(ctx context.Context, chunks []model.ChunkInput, ownerID string) ([]string, error)
}

// Archiver 保存上传的原始文件并返回对象 key。
type Archiver interface {
	Archive(ctx context.Context, ownerID, fileName, contentType string, data []byte) (string, error)
}

// IngestRequest 是一次上传。
type IngestRequest struct {
	OwnerID  string
	FileName string
	Data     []byte
}

// IngestResult 是上传成功后返回给调用方的摘要。
type IngestResult struct {
	FileName        string   `json:"fileName"`
	FileType        string   `json:"fileType"`
	ChunksProcessed int      `json:"chunksProcessed"`
	DocumentIDs     []string `json:"documentIds"`
}

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	extractor    TextExtractor
	embedder     BatchEmbedder
	store        ChunkWriter
	archiver     Archiver
	uploadRepo   repository.UploadRepository
	publisher    events.Publisher
	chunkSize    int
	chunkOverlap int
}

// ProcessorOption 为 Processor 挂载可选的附属组件。
type ProcessorOption func(*Processor)

// WithArchiver 在提取前把原始文件归档到对象存储。
func WithArchiver(a Archiver) ProcessorOption {
	return func(p *Processor) { p.archiver = a }
}

// WithUploadRecords 在入库成功后写一条上传记录。
func WithUploadRecords(repo repository.UploadRepository) ProcessorOption {
	return func(p *Processor) { p.uploadRepo = repo }
}

// WithPublisher 在入库成功后发布 document.ingested 事件。
func WithPublisher(pub events.Publisher) ProcessorOption {
	return func(p *Processor) { p.publisher = pub }
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(extractor TextExtractor, embedder BatchEmbedder, store ChunkWriter, cfg config.PipelineConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		extractor:    extractor,
		embedder:     embedder,
		store:        store,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest 处理一次上传。归档、上传记录和事件发布失败只记录日志，不影响结果。
func (p *Processor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := telemetry.Tracer("docchat/pipeline").Start(ctx, "ingest")
	defer span.End()

	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, apperr.New(apperr.Unauthorized, "缺少用户身份")
	}
	fileName := filepath.Base(strings.TrimSpace(req.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, apperr.New(apperr.BadInput, "缺少文件名")
	}
	fileType := extract.FileType(fileName)
	if !extract.IsSupported(fileName) {
		return nil, apperr.Newf(apperr.UnsupportedFormat, "unsupported file type: %q", fileType)
	}
	span.SetAttributes(
		attribute.String("docchat.file_type", fileType),
		attribute.Int("docchat.file_size", len(req.Data)),
	)
	log.Infof("[Processor] 开始处理文件, owner: %s, file: %s, size: %d", req.OwnerID, fileName, len(req.Data))

	// 1. 提取文本
	doc, err := p.extractor.Extract(ctx, req.Data, fileName)
	if err != nil {
		return nil, p.fail(span, "提取文本失败", fileName, err)
	}

	// 2. 文本切块
	chunks := SplitIntoChunks(doc.Text, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		return nil, p.fail(span, "未生成任何文本分块", fileName,
			apperr.New(apperr.EmptyDocument, "no text content found in the document"))
	}
	log.Infof("[Processor] 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 3. 向量化
	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, p.fail(span, "向量化失败", fileName, err)
	}

	// 4. 写入向量库
	inputs := make([]model.ChunkInput, len(chunks))
	for i, text := range chunks {
		inputs[i] = model.ChunkInput{Text: text, Embedding: vectors[i], FileName: fileName, ChunkIndex: i}
	}
	ids, err := p.store.AddDocuments(ctx, inputs, req.OwnerID)
	if err != nil {
		return nil, p.fail(span, "写入向量库失败", fileName, err)
	}

	// 5. 入库成功后才归档原始文件，失败的上传不会在对象存储中留下没有台账记录的对象
	objectKey := p.archive(ctx, req.OwnerID, fileName, req.Data)
	p.recordUpload(ctx, req, fileName, fileType, objectKey, len(ids))
	p.publish(ctx, events.Ingested(req.OwnerID, fileName, fileType, ids))

	log.Infof("[Processor] 文件处理成功完成, owner: %s, file: %s, chunks: %d", req.OwnerID, fileName, len(ids))
	return &IngestResult{
		FileName:        fileName,
		FileType:        fileType,
		ChunksProcessed: len(ids),
		DocumentIDs:     ids,
	}, nil
}

func (p *Processor) fail(span trace.Span, step, fileName string, err error) error {
	log.Errorf("[Processor] %s, file: %s, error: %v", step, fileName, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	return err
}

func (p *Processor) archive(ctx context.Context, ownerID, fileName string, data []byte) string {
	if p.archiver == nil {
		return ""
	}
	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key, err := p.archiver.Archive(ctx, ownerID, fileName, contentType, data)
	if err != nil {
		log.Warnf("[Processor] 归档原始文件失败, file: %s, error: %v", fileName, err)
		return ""
	}
	return key
}

func (p *Processor) recordUpload(ctx context.Context, req IngestRequest, fileName, fileType, objectKey string, chunkCount int) {
	if p.uploadRepo == nil {
		return
	}
	record := &model.UploadRecord{
		OwnerID:    req.OwnerID,
		FileName:   fileName,
		FileType:   fileType,
		Size:       int64(len(req.Data)),
		ObjectKey:  objectKey,
		ChunkCount: chunkCount,
	}
	if err := p.uploadRepo.Create(ctx, record); err != nil {
		log.Warnf("[Processor] 保存上传记录失败, file: %s, error: %v", fileName, err)
	}
}

func (p *Processor) publish(ctx context.Context, event events.DocumentEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		log.Warnf("[Processor] 发布事件失败, type: %s, error: %v", event.Type, err)
	}
}
