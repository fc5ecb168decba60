package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the service configuration, resolved from the environment.
// A .env file in the working directory is honored for local development.
type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	ProjectID string `envconfig:"GOOGLE_CLOUD_PROJECT"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	// KeyRefreshInterval bounds how long a resolved API key is reused before
	// the secret source is consulted again.
	KeyRefreshInterval time.Duration `envconfig:"KEY_REFRESH_INTERVAL" default:"1h"`

	// RunGateWindow is the throttle window guarding against overlapping
	// generation runs for the same user.
	RunGateWindow time.Duration `envconfig:"RUN_GATE_WINDOW" default:"30s"`

	// DedupRetention is how far back previously delivered insight hashes are
	// considered when filtering new candidates.
	DedupRetention time.Duration `envconfig:"DEDUP_RETENTION" default:"720h"`

	// GenerateTimeout caps a single call to the generation service.
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"60s"`

	ReportBucket string `envconfig:"REPORT_BUCKET"`

	// TriggerInterval and TriggerUsers drive the worker's periodic trigger.
	TriggerInterval time.Duration `envconfig:"TRIGGER_INTERVAL" default:"6h"`
	TriggerUsers    []string      `envconfig:"TRIGGER_USERS"`
}

// Load reads configuration from the environment, merging in a .env file when
// present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: processing environment: %w", err)
	}
	return cfg, nil
}

// SecretSource resolves the generation-service API key. Implementations may
// be slow (remote config, secret manager), so callers should wrap them with
// Cached.
type SecretSource interface {
	GeminiAPIKey(ctx context.Context) (string, error)
}

// StaticSecretSource serves a key resolved once at startup.
type StaticSecretSource struct {
	Key string
}

func (s *StaticSecretSource) GeminiAPIKey(ctx context.Context) (string, error) {
	if s.Key == "" {
		return "", fmt.Errorf("config: gemini api key is not set")
	}
	return s.Key, nil
}

// CachedSecretSource caches the key from an underlying source for a bounded
// interval, so per-call resolution does not hit the source on every run.
type CachedSecretSource struct {
	src SecretSource
	ttl time.Duration

	mu        sync.Mutex
	key       string
	fetchedAt time.Time
	now       func() time.Time
}

// NewCachedSecretSource wraps src with a TTL cache.
func NewCachedSecretSource(src SecretSource, ttl time.Duration) *CachedSecretSource {
	return &CachedSecretSource{src: src, ttl: ttl, now: time.Now}
}

func (c *CachedSecretSource) GeminiAPIKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != "" && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.key, nil
	}

	key, err := c.src.GeminiAPIKey(ctx)
	if err != nil {
		// A stale key beats no key while the source is unavailable.
		if c.key != "" {
			return c.key, nil
		}
		return "", err
	}

	c.key = key
	c.fetchedAt = c.now()
	return key, nil
}

var _ SecretSource = (*StaticSecretSource)(nil)
var _ SecretSource = (*CachedSecretSource)(nil)
