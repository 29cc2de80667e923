// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储关系库与 Redis 的连接配置。
// Driver 取值 postgres 或 mysql；pgvector 后端只能搭配 postgres。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。ServerURL 为空时相关的提取策略不可用。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不归档原始文件。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Provider 取值 http（OpenAI 兼容接口）、openai 或 gemini。
type EmbeddingConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Dimensions     int     `mapstructure:"dimensions"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// LLMConfig 存储大语言模型相关的配置。Provider 取值 http 或 gemini。
type LLMConfig struct {
	Provider       string              `mapstructure:"provider"`
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
	Prompt         LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置提示词中的固定文案。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	NoResultText string `mapstructure:"no_result_text"`
	EmptyCorpus  string `mapstructure:"empty_corpus"`
	EmptyAnswer  string `mapstructure:"empty_answer"`
}

// RetrievalConfig 控制检索阶段的阈值、返回条数和客户端回退时扫描的窗口大小。
type RetrievalConfig struct {
	TopK           int     `mapstructure:"top_k"`
	Threshold      float64 `mapstructure:"threshold"`
	FallbackWindow int     `mapstructure:"fallback_window"`
}

// PipelineConfig 控制文档切分与提取。
type PipelineConfig struct {
	ChunkSize         int `mapstructure:"chunk_size"`
	ChunkOverlap      int `mapstructure:"chunk_overlap"`
	PDFTimeoutSeconds int `mapstructure:"pdf_timeout_seconds"`
}

// VectorStoreConfig 选择向量存储后端：pgvector 或 elasticsearch。
type VectorStoreConfig struct {
	Backend             string `mapstructure:"backend"`
	CreateMatchFunction bool   `mapstructure:"create_match_function"`
}

// TelemetryConfig 存储 OpenTelemetry 导出配置。
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// 只有 viper 已知的键才会在 Unmarshal 时读取环境变量，因此密钥类配置也登记一个空默认值。
var envOnlyKeys = []string{
	"database.dsn",
	"database.redis.addr",
	"database.redis.password",
	"jwt.secret",
	"kafka.brokers",
	"tika.server_url",
	"elasticsearch.addresses",
	"elasticsearch.username",
	"elasticsearch.password",
	"minio.endpoint",
	"minio.access_key_id",
	"minio.secret_access_key",
	"embedding.api_key",
	"embedding.base_url",
	"embedding.model",
	"llm.api_key",
	"llm.base_url",
	"llm.model",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("jwt.access_token_expire_hours", 24)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kafka.topic", "docchat-events")
	v.SetDefault("tika.timeout_seconds", 60)
	v.SetDefault("elasticsearch.index_name", "document_chunks")
	v.SetDefault("minio.bucket_name", "docchat-uploads")

	v.SetDefault("embedding.provider", "http")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.max_concurrency", 8)
	v.SetDefault("embedding.timeout_seconds", 30)

	v.SetDefault("llm.provider", "http")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm.generation.max_tokens", 1000)

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.threshold", 0.5)
	v.SetDefault("retrieval.fallback_window", 500)

	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.pdf_timeout_seconds", 30)

	v.SetDefault("vector_store.backend", "pgvector")
	v.SetDefault("vector_store.create_match_function", true)

	v.SetDefault("telemetry.service_name", "docchat-go")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

// Load 读取 YAML 配置文件并返回解析后的 Config。
// 读取前会尝试加载当前目录下的 .env，环境变量以 DOCCHAT_ 为前缀覆盖同名配置项，
// 例如 DOCCHAT_LLM_API_KEY 覆盖 llm.api_key。configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case "pgvector":
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("vector_store.backend=pgvector 需要 database.driver=postgres, 当前为 %q", c.Database.Driver)
		}
	case "elasticsearch", "memory":
	default:
		return fmt.Errorf("未知的 vector_store.backend: %q", c.VectorStore.Backend)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions 必须为正数")
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold 必须在 [-1, 1] 区间内")
	}
	return nil
}
