// Package app 负责按配置组装所有组件，HTTP 服务和命令行工具共用同一套依赖。
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"docchat-go/internal/config"
	"docchat-go/internal/handler"
	"docchat-go/internal/pipeline"
	"docchat-go/internal/repository"
	"docchat-go/internal/service"
	"docchat-go/internal/vectorstore"
	"docchat-go/pkg/database"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/es"
	"docchat-go/pkg/events"
	"docchat-go/pkg/extract"
	"docchat-go/pkg/kafka"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/telemetry"
	"docchat-go/pkg/tika"
	"docchat-go/pkg/token"

	"gorm.io/gorm"
)

// App 持有进程内共享的服务实例。
type App struct {
	Config        *config.Config
	JWT           *token.JWTManager
	Store         *vectorstore.Store
	Processor     *pipeline.Processor
	Documents     service.DocumentService
	Answers       service.AnswerService
	Conversations service.ConversationService
	HealthChecks  map[string]handler.Pinger

	closers []func(ctx context.Context)
}

// Overrides 用于替换外部依赖，主要供测试使用。nil 字段按配置创建。
type Overrides struct {
	Embedder  embedding.Client
	Completer llm.Completer
}

// New 按配置初始化全部依赖。可选组件（Redis、MinIO、Kafka、Tika）未配置时跳过。
// 任何一步失败都会释放已经创建的资源。
func New(ctx context.Context, cfg *config.Config, ov Overrides) (a *App, err error) {
	a = &App{
		Config:       cfg,
		JWT:          token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours),
		HealthChecks: map[string]handler.Pinger{},
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		return a, fmt.Errorf("初始化 tracing 失败: %w", err)
	}
	a.onClose(shutdownTracer)

	// 1. 关系库与 Redis
	var db *gorm.DB
	if cfg.Database.DSN != "" {
		if db, err = database.InitDB(cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return a, err
		}
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return a, fmt.Errorf("获取底层数据库连接失败: %w", dbErr)
		}
		a.onClose(func(context.Context) { _ = sqlDB.Close() })
		a.HealthChecks["database"] = sqlDB.PingContext
	}

	rdb, err := database.InitRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		return a, err
	}
	if rdb != nil {
		a.onClose(func(context.Context) { _ = rdb.Close() })
		a.HealthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// 2. 向量存储后端
	backend, err := a.newBackend(ctx, db)
	if err != nil {
		return a, err
	}
	a.Store = vectorstore.New(backend, vectorstore.Options{
		Dimensions:     cfg.Embedding.Dimensions,
		TopK:           cfg.Retrieval.TopK,
		Threshold:      cfg.Retrieval.Threshold,
		FallbackWindow: cfg.Retrieval.FallbackWindow,
	})

	// 3. 上传台账、对象存储、事件
	var uploads repository.UploadRepository
	if db != nil {
		uploads = repository.NewUploadRepository(db)
		if err = uploads.AutoMigrate(); err != nil {
			return a, fmt.Errorf("迁移 upload_records 失败: %w", err)
		}
	}

	var archiver pipeline.Archiver
	var objects service.ObjectRemover
	if cfg.MinIO.Endpoint != "" {
		store, osErr := storage.NewObjectStore(ctx, cfg.MinIO)
		if osErr != nil {
			return a, osErr
		}
		archiver, objects = store, store
	}

	var publisher events.Publisher
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		publisher = producer
		a.onClose(func(context.Context) { _ = producer.Close() })
	}

	// 4. 模型客户端
	embedder := ov.Embedder
	if embedder == nil {
		if embedder, err = embedding.NewClient(ctx, cfg.Embedding); err != nil {
			return a, fmt.Errorf("初始化 embedding 客户端失败: %w", err)
		}
		a.closeIfCloser("embedding", embedder)
	}
	completer := ov.Completer
	if completer == nil {
		if completer, err = llm.NewClient(ctx, cfg.LLM); err != nil {
			return a, fmt.Errorf("初始化 LLM 客户端失败: %w", err)
		}
		a.closeIfCloser("llm", completer)
	}

	var tikaClient extract.TikaClient
	if c := tika.NewClient(cfg.Tika); c != nil {
		tikaClient = c
	}
	extractor := extract.New(tikaClient, time.Duration(cfg.Pipeline.PDFTimeoutSeconds)*time.Second)

	// 5. 服务
	var convRepo repository.ConversationRepository
	if rdb != nil {
		convRepo = repository.NewConversationRepository(rdb)
	}
	a.Conversations = service.NewConversationService(convRepo)
	a.Documents = service.NewDocumentService(a.Store, uploads, objects, publisher)
	a.Answers = service.NewAnswerService(embedder, a.Store, completer, a.Conversations, cfg.LLM, cfg.Retrieval.TopK)

	opts := []pipeline.ProcessorOption{}
	if archiver != nil {
		opts = append(opts, pipeline.WithArchiver(archiver))
	}
	if uploads != nil {
		opts = append(opts, pipeline.WithUploadRecords(uploads))
	}
	if publisher != nil {
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	a.Processor = pipeline.NewProcessor(extractor, embedder, a.Store, cfg.Pipeline, opts...)

	log.Infof("[App] 初始化完成, vector_store=%s, embedding=%s, llm=%s, redis=%t, minio=%t, kafka=%t, tika=%t",
		cfg.VectorStore.Backend, cfg.Embedding.Provider, cfg.LLM.Provider,
		rdb != nil, archiver != nil, publisher != nil, tikaClient != nil)
	return a, nil
}

func (a *App) newBackend(ctx context.Context, db *gorm.DB) (vectorstore.Backend, error) {
	cfg := a.Config
	switch cfg.VectorStore.Backend {
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("vector_store.backend=pgvector 需要配置 database.dsn")
		}
		repo := repository.NewChunkRepository(db)
		if err := repo.Migrate(ctx, cfg.Embedding.Dimensions, cfg.VectorStore.CreateMatchFunction); err != nil {
			return nil, err
		}
		return repo, nil
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		index, err := es.NewChunkIndex(ctx, client, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		a.HealthChecks["elasticsearch"] = func(ctx context.Context) error {
			res, err := client.Ping(client.Ping.WithContext(ctx))
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.IsError() {
				return fmt.Errorf("elasticsearch ping: %s", res.Status())
			}
			return nil
		}
		return index, nil
	case "memory":
		log.Warnf("[App] 使用内存向量存储，进程退出后数据会丢失")
		return vectorstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("未知的 vector_store.backend: %q", cfg.VectorStore.Backend)
	}
}

func (a *App) onClose(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

// closeIfCloser 在 v 持有需要释放的连接（例如 Gemini 的 gRPC 客户端）时登记关闭函数。
func (a *App) closeIfCloser(name string, v interface{}) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	a.onClose(func(context.Context) {
		if err := c.Close(); err != nil {
			log.Warnf("[App] 关闭 %s 客户端失败: %v", name, err)
		}
	})
}

// Close 按创建顺序的逆序释放资源。
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
