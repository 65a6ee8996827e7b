package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Vector    VectorConfig
	Redis     RedisConfig
	LLM       LLMConfig
	RAG       RAGConfig
	FewShot   FewShotConfig
	Ingestion IngestionConfig
	RateLimit RateLimitConfig
	MCP       MCPConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
	MaxQueryLength int
}

type DatabaseConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type VectorConfig struct {
	Backend string
	Milvus  MilvusConfig
	Chromem ChromemConfig
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type ChromemConfig struct {
	Path           string
	CollectionName string
}

type RedisConfig struct {
	Enabled             bool
	Host                string
	Port                int
	Password            string
	DB                  int
	EmbeddingTTLMinutes int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type RAGConfig struct {
	TopK              int
	RelevanceAnalysis bool
}

type FewShotConfig struct {
	MaxExamples int
}

type IngestionConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	MinTextLength int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type MCPConfig struct {
	Enabled bool
	Path    string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

const (
	VectorBackendMilvus  = "milvus"
	VectorBackendChromem = "chromem"
)

func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path when it is non-empty, otherwise
// from config.yaml in the usual search locations. A missing default file is
// not an error; defaults and QUERY_ROUTER_* environment variables apply.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/query-router")
	}

	v.SetEnvPrefix("QUERY_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Vector.Backend {
	case VectorBackendMilvus, VectorBackendChromem:
	default:
		return fmt.Errorf("unsupported vector backend %q", c.Vector.Backend)
	}

	if c.LLM.TimeoutSec <= 0 {
		return fmt.Errorf("llm.timeoutSec must be positive")
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.topK must be positive")
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunkOverlap must be smaller than ingestion.chunkSize")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	// A single chat turn can issue three generation calls.
	v.SetDefault("server.writeTimeout", 400)
	v.SetDefault("server.bodyLimit", 20*1024*1024)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("server.development", false)
	v.SetDefault("server.maxQueryLength", 2000)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/router.db")
	v.SetDefault("database.autoMigrate", true)

	v.SetDefault("vector.backend", VectorBackendChromem)
	v.SetDefault("vector.milvus.endpoint", "localhost:19530")
	v.SetDefault("vector.milvus.collectionName", "documents")
	v.SetDefault("vector.milvus.vectorDim", 768)
	v.SetDefault("vector.chromem.path", "./data/vectors")
	v.SetDefault("vector.chromem.collectionName", "documents")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTLMinutes", 1440)

	v.SetDefault("llm.baseURL", "http://localhost:11434/v1")
	v.SetDefault("llm.apiKey", "ollama")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.embeddingModel", "nomic-embed-text")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 120)

	v.SetDefault("rag.topK", 3)
	v.SetDefault("rag.relevanceAnalysis", true)

	v.SetDefault("fewshot.maxExamples", 5)

	v.SetDefault("ingestion.chunkSize", 1000)
	v.SetDefault("ingestion.chunkOverlap", 100)
	v.SetDefault("ingestion.minTextLength", 10)

	v.SetDefault("rateLimit.requestsPerMinute", 60)

	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.path", "/mcp")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
