package service

import (
	"context"
	"fmt"
	"strings"

	"docchat-go/internal/apperr"
	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"
	"docchat-go/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultEmptyCorpus  = "You haven't uploaded any documents yet. Please upload documents first, then ask your question."
	defaultRules        = "Answer the question using only the context above. If the answer is not contained in the context, say that you could not find it in the uploaded documents. Do not make up information."
	defaultNoResultText = "(No relevant context was found in the uploaded documents.)"
	defaultEmptyAnswer  = "Sorry, I could not generate a response."

	contextSeparator = "\n\n---\n\n"
)

// Embedder 把问题转换为查询向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever 是回答流程需要的向量库能力。
type Retriever interface {
	GetCount(ctx context.Context, ownerID string) (int64, error)
	Search(ctx context.Context, query []float32, topK int, ownerID string) ([]model.ScoredChunk, error)
}

// Source 指向回答所依据的分块。
type Source struct {
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Similarity float64 `json:"similarity"`
}

// AnswerResult 是一次问答的结果。
type AnswerResult struct {
	ResponseText string   `json:"responseText"`
	Sources      []Source `json:"sources"`
}

// AnswerService 基于用户自己的文档回答问题。
type AnswerService interface {
	Answer(ctx context.Context, question, ownerID string) (*AnswerResult, error)
}

// PromptTexts 是回答流程中面向用户和模型的固定文案，空字段使用默认值。
type PromptTexts struct {
	Rules        string
	NoResultText string
	EmptyCorpus  string
	EmptyAnswer  string
}

func (p PromptTexts) withDefaults() PromptTexts {
	if p.Rules == "" {
		p.Rules = defaultRules
	}
	if p.NoResultText == "" {
		p.NoResultText = defaultNoResultText
	}
	if p.EmptyCorpus == "" {
		p.EmptyCorpus = defaultEmptyCorpus
	}
	if p.EmptyAnswer == "" {
		p.EmptyAnswer = defaultEmptyAnswer
	}
	return p
}

type answerService struct {
	embedder      Embedder
	retriever     Retriever
	completer     llm.Completer
	conversations ConversationService
	topK          int
	gen           llm.GenerationParams
	texts         PromptTexts
}

// NewAnswerService 创建 AnswerService。conversations 可以为 nil。
func NewAnswerService(embedder Embedder, retriever Retriever, completer llm.Completer, conversations ConversationService, cfg config.LLMConfig, topK int) AnswerService {
	if topK <= 0 {
		topK = 5
	}
	gen := llm.GenerationParams{
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
		MaxTokens:   cfg.Generation.MaxTokens,
	}
	if gen.MaxTokens == 0 {
		gen.MaxTokens = 1000
	}
	if gen.Temperature == 0 {
		gen.Temperature = 0.3
	}
	return &answerService{
		embedder:      embedder,
		retriever:     retriever,
		completer:     completer,
		conversations: conversations,
		topK:          topK,
		gen:           gen,
		texts: PromptTexts{
			Rules:        cfg.Prompt.Rules,
			NoResultText: cfg.Prompt.NoResultText,
			EmptyCorpus:  cfg.Prompt.EmptyCorpus,
			EmptyAnswer:  cfg.Prompt.EmptyAnswer,
		}.withDefaults(),
	}
}

// Answer 执行 检索 -> 拼接上下文 -> 生成 的完整流程。
func (s *answerService) Answer(ctx context.Context, question, ownerID string) (*AnswerResult, error) {
	ctx, span := telemetry.Tracer("docchat/answer").Start(ctx, "answer")
	defer span.End()

	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.New(apperr.Unauthorized, "缺少用户身份")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.New(apperr.BadInput, "问题不能为空")
	}

	count, err := s.retriever.GetCount(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// 没有任何文档时直接返回提示，不调用任何外部模型
	if count == 0 {
		log.Infof("[AnswerService] 用户 %s 没有文档，返回上传提示", ownerID)
		return &AnswerResult{ResponseText: s.texts.EmptyCorpus, Sources: []Source{}}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, err
	}

	chunks, err := s.retriever.Search(ctx, queryVec, s.topK, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("docchat.corpus_chunks", int(count)),
		attribute.Int("docchat.retrieved_chunks", len(chunks)),
	)

	prompt := BuildPrompt(chunks, question, s.texts)
	answer, err := s.completer.Complete(ctx, prompt, s.gen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("completion: %w", err), "生成回答失败")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = s.texts.EmptyAnswer
	}

	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, Source{FileName: c.FileName, ChunkIndex: c.ChunkIndex, Similarity: c.Similarity})
	}

	if s.conversations != nil {
		if err := s.conversations.AddExchange(context.WithoutCancel(ctx), ownerID, question, answer); err != nil {
			log.Errorf("[AnswerService] 保存对话历史失败, owner: %s, error: %v", ownerID, err)
		}
	}

	log.Infof("[AnswerService] 回答完成, owner: %s, 来源数: %d", ownerID, len(sources))
	return &AnswerResult{ResponseText: answer, Sources: sources}, nil
}

// BuildPrompt 拼接检索到的分块、回答规则和问题。
// 每个分块以 [Source N: 文件名] 开头，分块之间用 --- 分隔。
func BuildPrompt(chunks []model.ScoredChunk, question string, texts PromptTexts) string {
	texts = texts.withDefaults()

	var sb strings.Builder
	sb.WriteString("Context:\n")
	if len(chunks) == 0 {
		sb.WriteString(texts.NoResultText)
	}
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(contextSeparator)
		}
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s", i+1, c.FileName, c.Text)
	}
	sb.WriteString("\n\n")
	sb.WriteString(texts.Rules)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
