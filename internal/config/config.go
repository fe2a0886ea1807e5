package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/crmkb/internal/service"
)

// EnvPrefix is prepended to every variable name, e.g. KB_DATABASE_URL.
const EnvPrefix = "KB"

type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	Debug          bool   `envconfig:"DEBUG" default:"false"`
	Environment    string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN      string `envconfig:"SENTRY_DSN"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`

	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	S3Endpoint    string `envconfig:"S3_ENDPOINT"`
	S3AccessKey   string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey   string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket      string `envconfig:"S3_BUCKET" default:"kb-files"`
	S3Region      string `envconfig:"S3_REGION" default:"us-east-1"`
	S3RetainFiles bool   `envconfig:"S3_RETAIN_FILES" default:"true"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	EmbeddingMaxRetries int           `envconfig:"EMBEDDING_MAX_RETRIES" default:"3"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1200"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"150"`

	QueueCapacity     int `envconfig:"QUEUE_CAPACITY" default:"64"`
	SearchDefaultTopK int `envconfig:"SEARCH_DEFAULT_TOP_K" default:"5"`

	// Zero disables the periodic record backfill.
	BackfillInterval time.Duration `envconfig:"BACKFILL_INTERVAL" default:"0"`
	BackfillDelay    time.Duration `envconfig:"BACKFILL_DELAY" default:"300ms"`

	WatchDir string `envconfig:"WATCH_DIR"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("KB_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("KB_CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("KB_EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasSentry reports whether error reporting is configured.
func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

func (c *Config) ChunkConfig() service.ChunkConfig {
	return service.ChunkConfig{Size: c.ChunkSize, Overlap: c.ChunkOverlap}
}

// TracesSampleRate samples everything in development and 10% elsewhere.
func (c *Config) TracesSampleRate() float64 {
	if c.Environment == "development" {
		return 1.0
	}
	return 0.1
}
