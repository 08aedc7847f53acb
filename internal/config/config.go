package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMinConns int32  `envconfig:"DATABASE_MIN_CONNS" default:"2"`

	// Primary text-generation/embedding backend
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// Fallback backend: any OpenAI-compatible endpoint (e.g. a local server)
	FallbackBaseURL string `envconfig:"FALLBACK_BASE_URL"`
	FallbackAPIKey  string `envconfig:"FALLBACK_API_KEY"`
	FallbackModel   string `envconfig:"FALLBACK_MODEL" default:"llama3.1"`

	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"10s"`
	PipelineTimeout   time.Duration `envconfig:"PIPELINE_TIMEOUT" default:"2m"`

	// Knowledge graph tuning
	DedupThreshold float64       `envconfig:"DEDUP_THRESHOLD" default:"0.70"`
	DecayHalfLife  float64       `envconfig:"DECAY_HALF_LIFE_DAYS" default:"90"`
	StaleThreshold float64       `envconfig:"STALE_THRESHOLD" default:"0.1"`
	DecayInterval  time.Duration `envconfig:"DECAY_INTERVAL" default:"1h"`

	// Relevance keep-threshold: 50 favors recall, 70 favors precision.
	RelevanceThreshold int `envconfig:"RELEVANCE_THRESHOLD" default:"50"`

	// Extraction retry budget for DETAILED contexts
	ExtractionRetries int `envconfig:"EXTRACTION_RETRIES" default:"2"`

	// Default profile used when ingest requests carry no user id
	DefaultUserID string `envconfig:"DEFAULT_USER_ID" default:"default"`

	// Raw context archive (optional)
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"contextiq-archive"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CONTEXTIQ", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
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

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasFallback() bool {
	return c.FallbackBaseURL != ""
}

func (c *Config) HasArchive() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
