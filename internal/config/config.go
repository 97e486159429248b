package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	VectorBackendQdrant   = "qdrant"
	VectorBackendWeaviate = "weaviate"

	SynthProviderAnthropic = "anthropic"
	SynthProviderGemini    = "gemini"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"textbook"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"textbook_rag"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Similarity index
	VectorBackend    string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	QdrantAddr       string `envconfig:"QDRANT_ADDR" default:"qdrant:6334"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"textbook_chunks"`
	WeaviateHost     string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme   string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	VectorDimension  int    `envconfig:"VECTOR_DIMENSION" default:"768"`

	// Embedding
	GeminiAPIKey     string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel   string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	EmbedConcurrency int     `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedRatePerSec  float64 `envconfig:"EMBED_RATE_PER_SEC" default:"10"`

	// Synthesis
	SynthProvider    string `envconfig:"SYNTH_PROVIDER" default:"anthropic"`
	ClaudeAPIKey     string `envconfig:"CLAUDE_API_KEY"`
	AnthropicModel   string `envconfig:"ANTHROPIC_MODEL" default:"claude-3-haiku-20240307"`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`
	GeminiChatModel  string `envconfig:"GEMINI_CHAT_MODEL" default:"gemini-1.5-flash"`
	SynthMaxTokens   int    `envconfig:"SYNTH_MAX_TOKENS" default:"1000"`

	// Segmentation
	SegmentMaxUnitSize int `envconfig:"SEGMENT_MAX_UNIT_SIZE" default:"512"`
	SegmentOverlap     int `envconfig:"SEGMENT_OVERLAP" default:"50"`

	// Queue
	NSQLookupd        string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost          string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP          string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableIndexWorker bool   `envconfig:"ENABLE_INDEX_WORKER" default:"false"`

	// Server
	ServerPort         int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath       string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	QueryLogMaxSizeMB  int    `envconfig:"QUERY_LOG_MAX_SIZE_MB" default:"100"`
	QueryLogMaxBackups int    `envconfig:"QUERY_LOG_MAX_BACKUPS" default:"5"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Missing .env files are fine; the shell may already carry the variables.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural settings only. Provider credentials are optional:
// when absent the dependent operations fail with a configuration error at call time.
func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case VectorBackendQdrant:
		if c.QdrantAddr == "" {
			return fmt.Errorf("%w: QDRANT_ADDR", ErrMissingRequired)
		}
	case VectorBackendWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND=%q", ErrInvalidValue, c.VectorBackend)
	}

	switch c.SynthProvider {
	case SynthProviderAnthropic, SynthProviderGemini:
	default:
		return fmt.Errorf("%w: SYNTH_PROVIDER=%q", ErrInvalidValue, c.SynthProvider)
	}

	if c.VectorDimension <= 0 {
		return fmt.Errorf("%w: VECTOR_DIMENSION must be positive", ErrInvalidValue)
	}
	if c.SegmentMaxUnitSize <= 0 {
		return fmt.Errorf("%w: SEGMENT_MAX_UNIT_SIZE must be positive", ErrInvalidValue)
	}
	if c.SegmentOverlap < 0 {
		return fmt.Errorf("%w: SEGMENT_OVERLAP must not be negative", ErrInvalidValue)
	}
	if c.EmbedConcurrency <= 0 {
		return fmt.Errorf("%w: EMBED_CONCURRENCY must be positive", ErrInvalidValue)
	}
	if c.EmbedRatePerSec <= 0 {
		return fmt.Errorf("%w: EMBED_RATE_PER_SEC must be positive", ErrInvalidValue)
	}
	return nil
}
