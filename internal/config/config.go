// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。为空时不启用 token 解析，只按 subjectId/sessionId 识别会话。
type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布聊天事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置，用于为咨询流程检索参考资料。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	TopK      int    `mapstructure:"top_k"`
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于归档生成的文书草稿。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与参考资料包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ProviderConfig 控制对外部生成服务的调用：超时、重试、退避与限流。
type ProviderConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// BreakerConfig 存储熔断器阈值。
type BreakerConfig struct {
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	ErrorRateThreshold float64       `mapstructure:"error_rate_threshold"`
	MinRequests        int           `mapstructure:"min_requests"`
	Window             time.Duration `mapstructure:"window"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
}

// CacheConfig 存储各操作的缓存 TTL。TTL 为 0 表示不缓存该操作的结果。
type CacheConfig struct {
	Backend     string        `mapstructure:"backend"` // redis | memory
	ClassifyTTL time.Duration `mapstructure:"classify_ttl"`
	ConsultTTL  time.Duration `mapstructure:"consult_ttl"`
	DraftTTL    time.Duration `mapstructure:"draft_ttl"`
}

// ConversationConfig 存储对话历史与上下文窗口相关的配置。
// RedisMaxHistory 与 RedisTTL 是 Redis 存储的保留策略，为 0 时不删除任何消息。
type ConversationConfig struct {
	Store            string        `mapstructure:"store"` // mysql | redis
	ClassifierWindow int           `mapstructure:"classifier_window"`
	GenerationWindow int           `mapstructure:"generation_window"`
	RedisMaxHistory  int           `mapstructure:"redis_max_history"`
	RedisTTL         time.Duration `mapstructure:"redis_ttl"`
}

// ClassifierConfig 存储意图分类器的配置。
type ClassifierConfig struct {
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	PromptVersion   string  `mapstructure:"prompt_version"`
}

// setDefaults 为所有可选项设置默认值，配置文件中缺省的键会回落到这里。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("jwt.token_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "chat-events")
	v.SetDefault("elasticsearch.index_name", "legal_references")
	v.SetDefault("elasticsearch.top_k", 3)
	v.SetDefault("minio.bucket_name", "legal-drafts")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.generation.temperature", 0.5)
	v.SetDefault("llm.generation.max_tokens", 1500)
	v.SetDefault("provider.timeout", 10*time.Second)
	v.SetDefault("provider.max_retries", 2)
	v.SetDefault("provider.backoff_base", 200*time.Millisecond)
	v.SetDefault("provider.backoff_max", 2*time.Second)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.error_rate_threshold", 0.5)
	v.SetDefault("breaker.min_requests", 10)
	v.SetDefault("breaker.window", time.Minute)
	v.SetDefault("breaker.cooldown", 30*time.Second)
	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.classify_ttl", time.Hour)
	v.SetDefault("cache.consult_ttl", 24*time.Hour)
	v.SetDefault("cache.draft_ttl", 0)
	v.SetDefault("conversation.store", "mysql")
	v.SetDefault("conversation.classifier_window", 5)
	v.SetDefault("conversation.generation_window", 10)
	v.SetDefault("conversation.redis_max_history", 0)
	v.SetDefault("conversation.redis_ttl", 0)
	v.SetDefault("classifier.confidence_floor", 0.5)
	v.SetDefault("classifier.prompt_version", "v1")
}

// Load 从指定路径读取 YAML 配置，环境变量（LAWCHAT_ 前缀，点号替换为下划线）优先于文件。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LAWCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，解析结果写入 Conf，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
